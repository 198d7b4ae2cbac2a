package target

import (
	"context"
	"fmt"

	"example.com/mtui/pkg/models"
	"github.com/beevik/etree"
)

const baseProductFile = "/etc/products.d/baseproduct"

func parseProduct(data string) (models.Product, error) {
	doc := etree.NewDocument()
	if err := doc.ReadFromString(data); err != nil {
		return models.Product{}, fmt.Errorf("parse product: %w", err)
	}
	root := doc.SelectElement("product")
	if root == nil {
		return models.Product{}, fmt.Errorf("parse product: no <product> element")
	}
	text := func(tag string) string {
		if e := root.SelectElement(tag); e != nil {
			return e.Text()
		}
		return ""
	}

	p := models.Product{Name: text("name"), Arch: text("arch")}
	if base := root.SelectElement("baseversion"); base != nil {
		p.Version = base.Text()
		if sp := text("patchlevel"); sp != "" && sp != "0" {
			p.Version += "-SP" + sp
		}
	} else {
		p.Version = text("version")
	}
	// CAASP 只有一个受支持的版本, 更新仓库不区分版本
	if p.Name == "CAASP" {
		p.Version = ""
	}
	return p, nil
}

// RefreshProducts reads the base product of the host.
func (t *Target) RefreshProducts(ctx context.Context) error {
	r, err := t.runQuiet(ctx, "cat "+baseProductFile)
	if err != nil {
		return err
	}
	if r.ExitCode != 0 || r.Stdout == "" {
		return fmt.Errorf("%s: cannot read %s", t.hostname, baseProductFile)
	}
	p, err := parseProduct(r.Stdout)
	if err != nil {
		return err
	}
	t.mu.Lock()
	t.products = []models.Product{p}
	t.mu.Unlock()
	return nil
}
