package cli

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

func init() {
	grant := &cobra.Command{
		Use:   "grant [role]",
		Short: "Grant a role to a user (guest, user, admin)",
		Args:  cobra.ExactArgs(1),
		Run:   runGrant,
	}
	revoke := &cobra.Command{
		Use:   "revoke",
		Short: "Revoke a user's permissions",
		Run:   runRevoke,
	}
	block := &cobra.Command{
		Use:   "block",
		Short: "Block a user entirely",
		Run:   runBlock,
	}
	unblock := &cobra.Command{
		Use:   "unblock",
		Short: "Lift a user block",
		Run:   runUnblock,
	}
	restrict := &cobra.Command{
		Use:   "restrict [duration]",
		Short: "Restrict a user for a duration (e.g. 30m, 2h)",
		Args:  cobra.ExactArgs(1),
		Run:   runRestrict,
	}

	RootCmd.AddCommand(grant, revoke, block, unblock, restrict)
}

func runGrant(cmd *cobra.Command, args []string) {
	user := requireUser()
	m := openManager(cmd)
	defer m.Close()

	if err := m.GrantAccess(user, args[0]); err != nil {
		exitErr("grant", err)
	}
	fmt.Printf("granted role %s to %s\n", args[0], user)
}

func runRevoke(cmd *cobra.Command, args []string) {
	user := requireUser()
	m := openManager(cmd)
	defer m.Close()

	m.Security().Access().Revoke(user)
	fmt.Printf("revoked permissions for %s\n", user)
}

func runBlock(cmd *cobra.Command, args []string) {
	user := requireUser()
	m := openManager(cmd)
	defer m.Close()

	m.Security().Access().Block(user)
	fmt.Printf("blocked %s\n", user)
}

func runUnblock(cmd *cobra.Command, args []string) {
	user := requireUser()
	m := openManager(cmd)
	defer m.Close()

	m.Security().Access().Unblock(user)
	fmt.Printf("unblocked %s\n", user)
}

func runRestrict(cmd *cobra.Command, args []string) {
	user := requireUser()
	d, err := time.ParseDuration(args[0])
	if err != nil {
		exitErr("restrict", err)
	}

	m := openManager(cmd)
	defer m.Close()

	m.Security().Access().Restrict(user, d)
	fmt.Printf("restricted %s for %s\n", user, d)
}
