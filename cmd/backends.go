package cmd

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/giantswarm/qa-environment/internal/kserve"
)

func newBackendsCmd() *cobra.Command {
	var (
		kind      string
		inCluster bool
	)

	cmd := &cobra.Command{
		Use:   "backends",
		Short: "List answer backends served by KServe",
		Long: `List the InferenceServices labelled as qa-environment backends in the
namespace, with their readiness and endpoint. A backend endpoint can be used
as --llm-endpoint, or selected at startup with 'serve --kserve-backend'.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			fs := cmd.Flags()
			namespace, _ := fs.GetString("namespace")
			kubeconfig, _ := fs.GetString("kubeconfig")

			discovery, err := kserve.NewDiscovery(namespace, kubeconfig, inCluster)
			if err != nil {
				return err
			}
			if err := discovery.CheckCRDAvailable(cmd.Context()); err != nil {
				return err
			}

			backends, err := discovery.List(cmd.Context(), kind)
			if err != nil {
				return err
			}
			if len(backends) == 0 {
				fmt.Printf("No backends found in namespace %s.\n", namespace)
				return nil
			}

			w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "NAME\tKIND\tREADY\tENDPOINT\tCREATED")
			for _, b := range backends {
				ready := "False"
				if b.Ready {
					ready = "True"
				}
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n", b.Name, b.Kind, ready, b.EndpointURL, b.CreatedAt)
			}
			return w.Flush()
		},
	}

	cmd.Flags().StringVar(&kind, "kind", "", "Only list backends of this kind (e.g. llm)")
	cmd.Flags().BoolVar(&inCluster, "in-cluster", false, "Use in-cluster Kubernetes authentication")

	return cmd
}
