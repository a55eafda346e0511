package cli

import (
	"fmt"
	"runtime"

	"github.com/spf13/cobra"
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(_ *cobra.Command, _ []string) {
		fmt.Println(styles.Title.Render("invariant ") + versionInfo.Version)
		fmt.Println(styles.Subtle.Render(fmt.Sprintf("commit %s, built %s, %s/%s",
			versionInfo.Commit, versionInfo.Date, runtime.GOOS, runtime.GOARCH)))
	},
}
