package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/ziadkadry99/dynadash/internal/progress"
	"github.com/ziadkadry99/dynadash/internal/realtime"
)

var (
	watchURL  string
	watchUser string
)

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Follow a user's dashboard generation progress",
	Long:  `Joins the user's progress room on a running server and renders the events as a progress bar until the job completes or fails.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		if watchUser == "" {
			return fmt.Errorf("--user is required")
		}

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		dialCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
		sub, err := realtime.Dial(dialCtx, watchURL, watchUser)
		cancel()
		if err != nil {
			return err
		}
		go func() {
			<-ctx.Done()
			sub.Close()
		}()
		defer sub.Close()

		fmt.Fprintf(os.Stderr, "Joined %s, waiting for progress...\n", realtime.RoomName(watchUser))
		tracker := &progress.Tracker{
			Reporter: progress.NewReporter(),
			Navigate: func(url string) {
				fmt.Printf("Dashboard ready: %s\n", url)
			},
		}
		return tracker.Run(sub)
	},
}

func init() {
	watchCmd.Flags().StringVar(&watchURL, "url", "ws://localhost:8080/ws/progress", "progress websocket URL")
	watchCmd.Flags().StringVar(&watchUser, "user", "", "user ID whose room to join")
	rootCmd.AddCommand(watchCmd)
}
