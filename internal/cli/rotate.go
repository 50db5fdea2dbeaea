package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

func init() {
	rotateCmd := &cobra.Command{
		Use:   "rotate-key",
		Short: "Rotate a user's encryption key epoch",
		Run:   runRotateKey,
	}
	rotateCmd.Flags().Bool("check", false, "Only report whether rotation is due")
	RootCmd.AddCommand(rotateCmd)
}

func runRotateKey(cmd *cobra.Command, args []string) {
	requireUser()
	check, _ := cmd.Flags().GetBool("check")

	m := openManager(cmd)
	defer m.Close()

	if check {
		if m.Security().ShouldRotateUserKey(userFlag) {
			fmt.Println("rotation due")
		} else {
			fmt.Println("rotation not due")
		}
		return
	}

	m.Security().RotateUserKey(userFlag)
	fmt.Printf("rotated key for %s\n", userFlag)
}
