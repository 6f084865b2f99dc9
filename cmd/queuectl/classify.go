package main

import (
	"fmt"

	"github.com/joshuadwieczorek/ga-queue-processor/internal/classifier"
	"github.com/spf13/cobra"
)

var classifyCmd = &cobra.Command{
	Use:   "classify URL...",
	Short: "Print the page type of each URL",
	Long:  "Classifies page URLs with the given VDP and SRP patterns, the same way the worker fills the pagetypeid column.",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runClassify,
}

var (
	classifyVdpNew       string
	classifyVdpUsed      string
	classifyVdpCertified string
	classifySrpNew       []string
	classifySrpUsed      []string
)

func init() {
	classifyCmd.Flags().StringVar(&classifyVdpNew, "vdp-new", "", "New vehicle details page pattern")
	classifyCmd.Flags().StringVar(&classifyVdpUsed, "vdp-used", "", "Used vehicle details page pattern")
	classifyCmd.Flags().StringVar(&classifyVdpCertified, "vdp-certified", "", "Certified vehicle details page pattern")
	classifyCmd.Flags().StringSliceVar(&classifySrpNew, "srp-new", nil, "New inventory search page patterns")
	classifyCmd.Flags().StringSliceVar(&classifySrpUsed, "srp-used", nil, "Used inventory search page patterns")

	rootCmd.AddCommand(classifyCmd)
}

func runClassify(cmd *cobra.Command, args []string) error {
	c := buildClassifier(classifyVdpNew, classifyVdpUsed, classifyVdpCertified, classifySrpNew, classifySrpUsed)

	out := cmd.OutOrStdout()
	for _, url := range args {
		pt := c.Classify(url)
		if _, err := fmt.Fprintf(out, "%d\t%s\t%s\n", int(pt), pt, url); err != nil {
			return fmt.Errorf("failed to write result: %w", err)
		}
	}
	return nil
}

func buildClassifier(vdpNew, vdpUsed, vdpCertified string, srpNew, srpUsed []string) *classifier.Classifier {
	var vdp []classifier.VdpPattern
	if vdpNew != "" || vdpUsed != "" || vdpCertified != "" {
		vdp = append(vdp, classifier.VdpPattern{New: vdpNew, Used: vdpUsed, Certified: vdpCertified})
	}

	srp := make([]classifier.SrpPattern, 0, len(srpNew)+len(srpUsed))
	for _, p := range srpNew {
		srp = append(srp, classifier.SrpPattern{Pattern: p, Kind: classifier.SrpNew})
	}
	for _, p := range srpUsed {
		srp = append(srp, classifier.SrpPattern{Pattern: p, Kind: classifier.SrpUsed})
	}

	return classifier.New(vdp, srp)
}
