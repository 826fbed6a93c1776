package main

import (
	"fmt"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"github.com/srg/vwifi/internal/wifi"
)

func newIfaceCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "iface",
		Short: "Manage virtual interfaces",
		Long: `Apply interface changes to a fresh device and print the result.

Changes run in this order: every --add, then every --change, then every
--del. Each --add takes TYPE or TYPE:NAME; an omitted name is derived from
the interface pattern. AP interfaces start beaconing as soon as they are
added.

Examples:
  vwifi iface --add station --add ap:ap0
  vwifi iface --add station:lab0 --change lab0=ap --del lab0`,
		Args: cobra.NoArgs,
		RunE: runIface,
	}

	cmd.Flags().StringP("format", "f", "table", "Output format (table, json)")
	cmd.Flags().StringArray("add", nil, "Add an interface: TYPE[:NAME]")
	cmd.Flags().StringArray("change", nil, "Change an interface type: NAME=TYPE")
	cmd.Flags().StringArray("del", nil, "Delete an interface by name")
	cmd.Flags().Bool("events", false, "Also print host notifications")
	return cmd
}

type ifaceRow struct {
	Name    string       `json:"name"`
	Index   int          `json:"index"`
	Type    string       `json:"type"`
	Address string       `json:"address"`
	Primary bool         `json:"primary"`
	TX      wifi.TxStats `json:"tx"`
}

func runIface(cmd *cobra.Command, _ []string) error {
	adds, _ := cmd.Flags().GetStringArray("add")
	changes, _ := cmd.Flags().GetStringArray("change")
	dels, _ := cmd.Flags().GetStringArray("del")
	showEvents, _ := cmd.Flags().GetBool("events")

	type addOp struct {
		typ  wifi.IfType
		name string
	}
	var addOps []addOp
	for _, spec := range adds {
		typStr, name, _ := strings.Cut(spec, ":")
		typ, err := wifi.ParseIfType(typStr)
		if err != nil {
			return fmt.Errorf("invalid --add %q: %w", spec, err)
		}
		addOps = append(addOps, addOp{typ: typ, name: name})
	}

	type changeOp struct {
		name string
		typ  wifi.IfType
	}
	var changeOps []changeOp
	for _, spec := range changes {
		name, typStr, ok := strings.Cut(spec, "=")
		if !ok || name == "" {
			return fmt.Errorf("invalid --change %q: want NAME=TYPE", spec)
		}
		typ, err := wifi.ParseIfType(typStr)
		if err != nil {
			return fmt.Errorf("invalid --change %q: %w", spec, err)
		}
		changeOps = append(changeOps, changeOp{name: name, typ: typ})
	}

	s, err := newSession(cmd, nil)
	if err != nil {
		return err
	}

	ctx, cancel := signalContext(cmd.Context())
	defer cancel()

	apply := func() error {
		for _, op := range addOps {
			if _, err := s.dev.AddInterface(ctx, op.typ, op.name); err != nil {
				return err
			}
		}
		for _, op := range changeOps {
			vif, err := s.lookup(op.name)
			if err != nil {
				return err
			}
			if err := s.dev.ChangeInterface(ctx, vif, op.typ); err != nil {
				return err
			}
		}
		for _, name := range dels {
			vif, err := s.lookup(name)
			if err != nil {
				return err
			}
			if err := s.dev.DeleteInterface(ctx, vif); err != nil {
				return err
			}
		}
		return nil
	}
	if err := apply(); err != nil {
		return firstErr(err, s.close())
	}

	if err := s.printInterfaces(); err != nil {
		return firstErr(err, s.close())
	}
	if !showEvents {
		s.dev.Close()
		return nil
	}
	return s.close()
}

func (s *session) printInterfaces() error {
	primary := s.dev.Primary()

	var rows []ifaceRow
	for _, vif := range s.dev.Interfaces() {
		rows = append(rows, ifaceRow{
			Name:    vif.Name(),
			Index:   vif.Index(),
			Type:    vif.Type().String(),
			Address: vif.HardwareAddr().String(),
			Primary: vif == primary,
			TX:      vif.TxStats(),
		})
	}

	if s.out.format == "json" {
		return s.out.JSON(rows)
	}

	w := tabwriter.NewWriter(s.out.w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "NAME\tINDEX\tTYPE\tADDRESS\tPRIMARY")
	for _, r := range rows {
		fmt.Fprintf(w, "%s\t%d\t%s\t%s\t%t\n", r.Name, r.Index, r.Type, r.Address, r.Primary)
	}
	return w.Flush()
}
