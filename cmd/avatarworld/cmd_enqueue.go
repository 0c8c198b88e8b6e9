package main

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"
	"gorm.io/datatypes"

	"github.com/yungbote/avatarworld/internal/app"
	types "github.com/yungbote/avatarworld/internal/domain/assignments"
	"github.com/yungbote/avatarworld/internal/jobs/video"
)

func newEnqueueCmd(configPath *string) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "enqueue",
		Short: "Add work directly to the durable queues",
	}
	cmd.AddCommand(newEnqueueAssignmentCmd(configPath), newEnqueueVideoCmd(configPath))
	return cmd
}

// withApp builds the app without starting the scheduler or HTTP server.
func withApp(ctx context.Context, configPath string, fn func(a *app.App) error) error {
	log, err := newLogger()
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	a, err := app.NewWithLogger(ctx, log, configPath)
	if err != nil {
		return err
	}
	defer func() { _ = a.Shutdown(context.Background()) }()
	return fn(a)
}

func newEnqueueAssignmentCmd(configPath *string) *cobra.Command {
	var (
		kind     string
		channel  string
		avatar   string
		priority int
		payload  string
		unique   bool
	)
	cmd := &cobra.Command{
		Use:   "assignment",
		Short: "Enqueue one assignment",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if channel == "" || avatar == "" {
				return fmt.Errorf("--channel and --avatar are required")
			}
			if payload != "" && !json.Valid([]byte(payload)) {
				return fmt.Errorf("--payload is not valid JSON")
			}
			typ, err := types.ParseType(kind)
			if err != nil {
				return fmt.Errorf("--type: %w", err)
			}
			item := &types.Assignment{
				Type:      typ,
				ChannelID: channel,
				AvatarID:  avatar,
				Priority:  priority,
				Payload:   datatypes.JSON(payload),
			}
			return withApp(cmd.Context(), *configPath, func(a *app.App) error {
				enqueue := a.Services.Queue.Enqueue
				if unique {
					enqueue = a.Services.Queue.EnqueueUnique
				}
				res := enqueue(cmd.Context(), []*types.Assignment{item})
				if res.Degraded() {
					return res.Err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Inserted %d assignment(s)\n", res.Value)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&kind, "type", string(types.TypeRespond), "assignment type")
	cmd.Flags().StringVar(&channel, "channel", "", "channel id")
	cmd.Flags().StringVar(&avatar, "avatar", "", "avatar id")
	cmd.Flags().IntVar(&priority, "priority", 0, "higher runs first")
	cmd.Flags().StringVar(&payload, "payload", "", "JSON payload")
	cmd.Flags().BoolVar(&unique, "unique", true, "skip if an active assignment already exists for type/channel/avatar")
	return cmd
}

func newEnqueueVideoCmd(configPath *string) *cobra.Command {
	var spec video.JobSpec
	cmd := &cobra.Command{
		Use:   "video <prompt>",
		Short: "Enqueue one video generation job",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			spec.Prompt = args[0]
			return withApp(cmd.Context(), *configPath, func(a *app.App) error {
				res := a.Services.VideoJobs.Enqueue(cmd.Context(), spec)
				if res.Err != nil {
					return res.Err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Queued video job %s\n", res.Value[0].ID)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&spec.Type, "type", "video", "job type")
	cmd.Flags().StringVar(&spec.Notify, "notify", "", "destination told when the job finishes")
	return cmd
}
