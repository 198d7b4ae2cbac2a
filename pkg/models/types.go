package models

// Identity 定义认证信息
type Identity struct {
	User       string `yaml:"user"`
	KeyPath    string `yaml:"key_path,omitempty"`
	Passphrase string `yaml:"passphrase,omitempty"`
	Password   string `yaml:"password,omitempty"`
	AuthType   string `yaml:"auth_type"` // "key", "password", "agent"
}

// Host 定义网络连接信息
type Host struct {
	Alias   []string `yaml:"alias,omitempty"`
	Address string   `yaml:"address"`
	Port    uint16   `yaml:"port"`
}

// Node is one reference host as listed in refhosts.yml. It ties a network
// endpoint and an identity to the system it runs.
type Node struct {
	Alias []string `yaml:"alias,omitempty"`
	Tags  []string `yaml:"tags,omitempty"`

	HostRef     string `yaml:"host_ref"`
	IdentityRef string `yaml:"identity_ref"`

	ProxyJump string `yaml:"proxy_jump,omitempty"`

	System        string `yaml:"system"`
	Transactional bool   `yaml:"transactional,omitempty"`
	Location      string `yaml:"location,omitempty"`
}

// HasTag reports whether the node carries tag.
func (n Node) HasTag(tag string) bool {
	for _, t := range n.Tags {
		if t == tag {
			return true
		}
	}
	return false
}
