package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/wzin/concord/internal/room"
)

var newCmd = &cobra.Command{
	Use:   "new",
	Short: "Generate a fresh room identifier",
	Long:  `Generates an unguessable room identifier. Nothing is registered on the server; the room comes into existence when the first participant joins, and that participant becomes its creator.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := room.NewRoomID()
		if err != nil {
			return err
		}
		fmt.Println(id)
		fmt.Printf("share it, then run: concord join %s\n", id)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(newCmd)
}
