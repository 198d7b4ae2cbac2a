package cmd

import (
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
	"text/tabwriter"

	"example.com/mtui/pkg/config"
	"example.com/mtui/pkg/models"
	"github.com/spf13/cobra"
	"golang.org/x/term"
)

// NewCmdRefhosts manages the reference host inventory.
func NewCmdRefhosts() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "refhosts",
		Aliases: []string{"inventory", "inv"},
		Short:   "Manage the reference host inventory",
		Long: `Manage the reference host inventory (refhosts_path in the config). Each
node ties an address and an identity to the system it runs and the
location it stands in.`,
		Run: func(cmd *cobra.Command, args []string) {
			cmd.Help()
		},
	}

	cmd.AddCommand(NewCmdRefhostsList())
	cmd.AddCommand(NewCmdRefhostsAdd())
	cmd.AddCommand(NewCmdRefhostsDelete())
	return cmd
}

func openRefhosts() (config.Store, *config.Configuration, error) {
	cfg, err := rootOpts.loadConfig()
	if err != nil {
		return nil, nil, err
	}
	store, err := config.OpenStore(cfg.RefhostsPath)
	if err != nil {
		return nil, nil, err
	}
	inv, err := store.Load()
	if err != nil {
		return nil, nil, fmt.Errorf("load refhosts: %w", err)
	}
	return store, inv, nil
}

func NewCmdRefhostsList() *cobra.Command {
	var system, location, tag string
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List the stored nodes",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			_, inv, err := openRefhosts()
			if err != nil {
				return err
			}
			printNodes(cmd.OutOrStdout(), config.NewProvider(inv), system, location, tag)
			return nil
		},
	}
	cmd.Flags().StringVarP(&system, "system", "s", "", "only nodes running this system")
	cmd.Flags().StringVarP(&location, "location", "l", "", "only nodes at this location")
	cmd.Flags().StringVar(&tag, "tag", "", "only nodes with this tag")
	return cmd
}

func printNodes(out io.Writer, provider config.ConfigProvider, system, location, tag string) {
	var nodes map[string]models.Node
	switch {
	case system != "":
		nodes = map[string]models.Node{}
		for _, id := range provider.GetNodesBySystem(system, location) {
			nodes[id], _ = provider.GetNode(id)
		}
	case tag != "":
		nodes = provider.GetNodesByTag(tag)
	default:
		nodes = provider.ListNodes()
	}
	if location != "" && location != "default" {
		for id, n := range nodes {
			if n.Location != location {
				delete(nodes, id)
			}
		}
	}
	if len(nodes) == 0 {
		fmt.Fprintln(out, "no nodes found")
		return
	}

	w := tabwriter.NewWriter(out, 0, 0, 3, ' ', 0)
	fmt.Fprintln(w, "NAME\tSYSTEM\tLOCATION\tADDRESS\tUSER\tAUTH\tTRANSACTIONAL\tTAGS")

	// 排序以便稳定显示
	keys := make([]string, 0, len(nodes))
	for k := range nodes {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, id := range keys {
		node := nodes[id]
		host, _ := provider.GetHost(id)
		identity, _ := provider.GetIdentity(id)
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\t%t\t%s\n",
			id,
			node.System,
			node.Location,
			fmt.Sprintf("%s:%d", host.Address, host.Port),
			identity.User,
			identity.AuthType,
			node.Transactional,
			strings.Join(node.Tags, ", "),
		)
	}
	w.Flush()
}

func NewCmdRefhostsAdd() *cobra.Command {
	var (
		address       string
		port          uint16
		userName      string
		password      string
		keyPath       string
		keyPass       string
		askPass       bool
		system        string
		location      string
		transactional bool
		alias         []string
		tags          []string
		jump          string
	)

	cmd := &cobra.Command{
		Use:   "add name",
		Short: "Add a reference host",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			name := args[0]
			if address == "" {
				address = name
			}
			if system == "" {
				return fmt.Errorf("--system is required")
			}
			store, inv, err := openRefhosts()
			if err != nil {
				return err
			}
			provider := config.NewProvider(inv)
			if _, ok := provider.GetNode(name); ok {
				return fmt.Errorf("node %s already exists", name)
			}

			if userName == "" {
				userName = "root"
			}
			identity := models.Identity{User: userName, AuthType: "agent"}
			switch {
			case keyPath != "":
				identity.KeyPath = keyPath
				identity.Passphrase = keyPass
				identity.AuthType = "key"
			case password != "":
				identity.Password = password
				identity.AuthType = "password"
			case askPass:
				// 从终端读取密码，不回显
				fmt.Fprintf(cmd.OutOrStdout(), "password for %s@%s: ", userName, address)
				pass, err := term.ReadPassword(int(os.Stdin.Fd()))
				fmt.Fprintln(cmd.OutOrStdout())
				if err != nil {
					return err
				}
				identity.Password = string(pass)
				identity.AuthType = "password"
			}

			node := models.Node{
				HostRef:       "host-" + name,
				IdentityRef:   "id-" + name,
				Alias:         alias,
				Tags:          tags,
				ProxyJump:     jump,
				System:        system,
				Transactional: transactional,
				Location:      location,
			}
			provider.AddIdentity(node.IdentityRef, identity)
			provider.AddHost(node.HostRef, models.Host{Address: address, Port: port})
			provider.AddNode(name, node)

			if err := store.Save(inv); err != nil {
				return fmt.Errorf("save refhosts: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "added node %s\n", name)
			return nil
		},
	}

	cmd.Flags().StringVarP(&address, "address", "H", "", "host address (default the name)")
	cmd.Flags().Uint16VarP(&port, "port", "p", 22, "ssh port")
	cmd.Flags().StringVarP(&userName, "user", "u", "", "ssh user (default root)")
	cmd.Flags().StringVarP(&password, "password", "P", "", "ssh password")
	cmd.Flags().BoolVar(&askPass, "ask-pass", false, "prompt for the ssh password")
	cmd.Flags().StringVarP(&keyPath, "key", "k", "", "ssh private key")
	cmd.Flags().StringVarP(&keyPass, "key-pass", "w", "", "private key passphrase")
	cmd.Flags().StringVarP(&system, "system", "s", "", "system the host runs, e.g. sles15sp5-x86_64")
	cmd.Flags().StringVarP(&location, "location", "l", "", "location of the host")
	cmd.Flags().BoolVar(&transactional, "transactional", false, "host uses transactional-update")
	cmd.Flags().StringSliceVarP(&alias, "alias", "a", []string{}, "node aliases (comma separated)")
	cmd.Flags().StringSliceVarP(&tags, "tags", "t", []string{}, "node tags (comma separated)")
	cmd.Flags().StringVarP(&jump, "jump", "j", "", "jump host")
	cmd.MarkFlagsMutuallyExclusive("password", "key", "ask-pass")

	return cmd
}

func NewCmdRefhostsDelete() *cobra.Command {
	return &cobra.Command{
		Use:   "delete name",
		Short: "Delete a reference host",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, inv, err := openRefhosts()
			if err != nil {
				return err
			}
			provider := config.NewProvider(inv)
			name := provider.Find(args[0])
			if name == "" {
				return fmt.Errorf("node %s does not exist", args[0])
			}
			provider.DeleteNode(name)
			if err := store.Save(inv); err != nil {
				return fmt.Errorf("save refhosts: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "deleted node %s\n", name)
			return nil
		},
	}
}

func init() {
	rootCmd.AddCommand(NewCmdRefhosts())
}
