package config

import (
	"fmt"
	"slices"

	"example.com/mtui/pkg/models"
	"example.com/mtui/pkg/utils/concurrent"
)

type Provider struct {
	cfg         *Configuration
	lookupIndex *concurrent.Map[string, string]
}

func NewProvider(cfg *Configuration) ConfigProvider {
	provider := Provider{
		cfg:         cfg,
		lookupIndex: concurrent.NewMap[string, string](concurrent.HashString),
	}
	provider.init()
	return provider
}

// add 将主机及其所有标识符加入索引
func (cp Provider) add(nodeId string) {
	node, ok := cp.GetNode(nodeId)
	if !ok {
		return
	}
	host, ok := cp.GetHost(nodeId)
	if !ok {
		return
	}
	cp.lookupIndex.Set(nodeId, nodeId)
	cp.lookupIndex.Set(host.Address, nodeId)
	if identity, ok := cp.GetIdentity(nodeId); ok && identity.User != "" {
		cp.lookupIndex.Set(fmt.Sprintf("%s@%s:%d", identity.User, host.Address, host.Port), nodeId)
		for _, addr := range host.Alias {
			if addr == "" {
				continue
			}
			cp.lookupIndex.Set(fmt.Sprintf("%s@%s:%d", identity.User, addr, host.Port), nodeId)
		}
	}
	for _, alias := range append(slices.Clone(node.Alias), host.Alias...) {
		if alias == "" {
			continue
		}
		cp.lookupIndex.Set(alias, nodeId)
	}
}

// Find 匹配用户输入, 未找到时返回空字符串
func (cp Provider) Find(input string) string {
	if nodeId, ok := cp.lookupIndex.Get(input); ok {
		return nodeId
	}
	return ""
}

func (cp Provider) GetNode(nodeId string) (models.Node, bool) {
	return cp.cfg.Nodes.Get(nodeId)
}

func (cp Provider) GetHost(nodeId string) (models.Host, bool) {
	if node, ok := cp.cfg.Nodes.Get(nodeId); ok {
		return cp.cfg.Hosts.Get(node.HostRef)
	}
	return models.Host{}, false
}

func (cp Provider) GetIdentity(nodeId string) (models.Identity, bool) {
	if node, ok := cp.cfg.Nodes.Get(nodeId); ok {
		return cp.cfg.Identities.Get(node.IdentityRef)
	}
	return models.Identity{}, false
}

func (cp Provider) AddNode(nodeId string, node models.Node) {
	cp.cfg.Nodes.Set(nodeId, node)
	cp.add(nodeId)
}

func (cp Provider) AddHost(hostId string, host models.Host) {
	cp.cfg.Hosts.Set(hostId, host)
}

func (cp Provider) AddIdentity(identityId string, identity models.Identity) {
	cp.cfg.Identities.Set(identityId, identity)
}

func (cp Provider) DeleteNode(nodeId string) {
	if _, ok := cp.cfg.Nodes.Pop(nodeId); !ok {
		return
	}
	for _, key := range cp.lookupIndex.Keys() {
		if val, ok := cp.lookupIndex.Get(key); ok && val == nodeId {
			cp.lookupIndex.Remove(key)
		}
	}
}

func (cp Provider) ListNodes() map[string]models.Node {
	return cp.cfg.Nodes.Snapshot()
}

func (cp Provider) GetNodesByTag(tag string) map[string]models.Node {
	nodes := make(map[string]models.Node)
	cp.cfg.Nodes.IterCb(func(id string, n models.Node) bool {
		if n.HasTag(tag) {
			nodes[id] = n
		}
		return true
	})
	return nodes
}

// GetNodesBySystem returns the sorted ids of nodes running system. An
// empty or "default" location matches every node.
func (cp Provider) GetNodesBySystem(system, location string) []string {
	var ids []string
	cp.cfg.Nodes.IterCb(func(id string, n models.Node) bool {
		if n.System != system {
			return true
		}
		if location != "" && location != "default" && n.Location != location {
			return true
		}
		ids = append(ids, id)
		return true
	})
	slices.Sort(ids)
	return ids
}

func (cp Provider) init() {
	// 按名称排序, 别名冲突时结果稳定
	for _, nodeId := range concurrent.SortedKeys(cp.cfg.Nodes) {
		cp.add(nodeId)
	}
}
