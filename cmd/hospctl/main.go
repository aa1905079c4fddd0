// hospctl is a terminal front-end for the hospital platform's authentication
// flows: it hosts the session client, persists the session under the user's
// home directory, and talks to the auth server configured via
// HOSPITAL_API_URL.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "hospctl",
		Short:         "Hospital platform auth client",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.AddCommand(
		newLoginCmd(),
		newLogoutCmd(),
		newRegisterCmd(),
		newVerifyOTPCmd(),
		newResendOTPCmd(),
		newWhoamiCmd(),
	)
	return root
}
