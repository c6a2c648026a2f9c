package main

import (
	"context"
	"fmt"
	"io"
	"mime"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/MarcoPoloResearchLab/fanreel/internal/app"
	"github.com/MarcoPoloResearchLab/fanreel/internal/remote"
	"github.com/MarcoPoloResearchLab/fanreel/internal/upload"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

func newVideosCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "videos",
		Short: "List the catalog, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withSession(cmd, func(session clientSession) error {
				videos, err := app.Resolve(cmd.Context(), session.app.Catalog.Videos())
				if err != nil {
					return err
				}
				printVideos(cmd.OutOrStdout(), videos)
				return nil
			})
		},
	}
}

func printVideos(out io.Writer, videos []remote.Video) {
	if len(videos) == 0 {
		fmt.Fprintln(out, "no videos yet")
		return
	}
	writer := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(writer, "ID\tTITLE\tDURATION\tVIEWS\tUPLOADED")
	for _, video := range videos {
		fmt.Fprintf(writer, "%s\t%s\t%ds\t%d\t%s\n",
			video.ID,
			video.Title,
			video.DurationSeconds,
			video.ViewCount,
			video.UploadedAt.Local().Format(time.DateTime))
	}
	_ = writer.Flush()
}

func newVideoCommand() *cobra.Command {
	var recordView bool
	cmd := &cobra.Command{
		Use:   "video <id>",
		Short: "Show one video",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withSession(cmd, func(session clientSession) error {
				if recordView {
					if err := session.client.RecordView(cmd.Context(), args[0]); err != nil {
						return err
					}
				}
				lookup, err := app.Resolve(cmd.Context(), session.app.Catalog.Video(args[0]))
				if err != nil {
					return err
				}
				if !lookup.Found {
					return fmt.Errorf("video %s not found", args[0])
				}
				video := lookup.Video
				out := cmd.OutOrStdout()
				fmt.Fprintf(out, "%s\n%s\n\n", video.Title, video.Description)
				fmt.Fprintf(out, "duration:  %ds\n", video.DurationSeconds)
				fmt.Fprintf(out, "views:     %d\n", video.ViewCount)
				fmt.Fprintf(out, "uploaded:  %s\n", video.UploadedAt.Local().Format(time.DateTime))
				fmt.Fprintf(out, "file:      %s\n", video.File)
				if video.Thumbnail != nil {
					fmt.Fprintf(out, "thumbnail: %s\n", *video.Thumbnail)
				}
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&recordView, "view", false, "Count a playback before showing the video")
	return cmd
}

func newProfileCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "profile [identity]",
		Short: "Show your profile, or another identity's profile",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withSession(cmd, func(session clientSession) error {
				out := cmd.OutOrStdout()
				catalogService := session.app.Catalog
				if len(args) == 1 {
					lookup, err := app.Resolve(cmd.Context(), catalogService.UserProfile(args[0]))
					if err != nil {
						return err
					}
					printProfile(out, args[0], lookup.Profile, lookup.Found)
					return nil
				}
				identity := catalogService.Session().Identity
				if identity == "" {
					return fmt.Errorf("log in to see your profile")
				}
				lookup, err := app.Resolve(cmd.Context(), catalogService.CallerProfile())
				if err != nil {
					return err
				}
				printProfile(out, identity, lookup.Profile, lookup.Found)
				fmt.Fprintf(out, "role:     %s\n", session.app.Role())
				if creator, bound := session.app.Binder.Creator(); bound {
					fmt.Fprintf(out, "creator:  %s\n", creator)
				}
				return nil
			})
		},
	}
}

func printProfile(out io.Writer, identity string, profile remote.Profile, found bool) {
	fmt.Fprintf(out, "identity: %s\n", identity)
	if !found {
		fmt.Fprintln(out, "name:     (not set)")
		return
	}
	fmt.Fprintf(out, "name:     %s\n", profile.Name)
}

func newSetNameCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "set-name <display name>",
		Short: "Save your display name",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withSession(cmd, func(session clientSession) error {
				name := strings.Join(args, " ")
				if _, err := session.app.Catalog.SaveProfile.Run(cmd.Context(), remote.Profile{Name: name}); err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), "profile saved")
				return nil
			})
		},
	}
}

func newFollowCommand(follow bool) *cobra.Command {
	use, short := "unfollow", "Stop following the creator"
	if follow {
		use, short = "follow", "Follow the creator"
	}
	return &cobra.Command{
		Use:   use,
		Short: short,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withSession(cmd, func(session clientSession) error {
				controls, err := session.app.FollowControls(cmd.Context())
				if err != nil {
					return err
				}
				if !controls.Visible {
					return fmt.Errorf("creators cannot follow themselves")
				}
				if controls.Reason != "" {
					return fmt.Errorf("%s", controls.Reason)
				}
				viewer := session.app.Viewer()
				if follow {
					_, err = session.app.Toggle.Follow(cmd.Context(), viewer)
				} else {
					_, err = session.app.Toggle.Unfollow(cmd.Context(), viewer)
				}
				if err != nil {
					return err
				}
				count, err := app.Resolve(cmd.Context(), session.app.Catalog.FollowerCount(controls.Target))
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%sed %s (%d followers)\n", use, controls.Target, count)
				return nil
			})
		},
	}
}

func newUploadCommand() *cobra.Command {
	var (
		title         string
		description   string
		thumbnailPath string
	)
	cmd := &cobra.Command{
		Use:   "upload <video file>",
		Short: "Upload a 10-20 second video",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withSession(cmd, func(session clientSession) error {
				if !session.app.Role().Privileged() {
					return fmt.Errorf("only the creator can upload videos")
				}
				return runUpload(cmd, session, args[0], thumbnailPath, title, description)
			})
		},
	}
	cmd.Flags().StringVar(&title, "title", "", "Video title (required)")
	cmd.Flags().StringVar(&description, "description", "", "Video description")
	cmd.Flags().StringVar(&thumbnailPath, "thumbnail", "", "Optional thumbnail image (jpeg, png, webp)")
	return cmd
}

func runUpload(cmd *cobra.Command, session clientSession, videoPath, thumbnailPath, title, description string) error {
	ctx := cmd.Context()
	out := cmd.OutOrStdout()
	uploads := session.app.Uploads

	data, err := os.ReadFile(videoPath)
	if err != nil {
		return err
	}
	if err := uploads.SelectVideo(ctx, filepath.Base(videoPath), declaredType(videoPath), data); err != nil {
		return err
	}
	draft := uploads.Draft()
	fmt.Fprintf(out, "selected %s (%.1fs)\n", draft.FileName, draft.Duration.Seconds())

	if thumbnailPath != "" {
		image, err := os.ReadFile(thumbnailPath)
		if err != nil {
			return err
		}
		if err := uploads.SelectThumbnail(filepath.Base(thumbnailPath), declaredType(thumbnailPath), image); err != nil {
			return err
		}
	}
	if err := uploads.SetTitle(title); err != nil {
		return err
	}
	if err := uploads.SetDescription(description); err != nil {
		return err
	}

	progressCtx, stopProgress := context.WithCancel(ctx)
	progressDone := make(chan struct{})
	go func() {
		defer close(progressDone)
		reportProgress(progressCtx, cmd.ErrOrStderr(), uploads)
	}()
	result, err := uploads.Submit(ctx)
	stopProgress()
	<-progressDone
	if err != nil {
		return err
	}

	fmt.Fprintf(out, "uploaded %s\n", result.VideoID)
	if result.Warning != "" {
		fmt.Fprintf(out, "warning: %s\n", result.Warning)
		session.logger.Debug("thumbnail failure", zap.Error(result.ThumbnailErr))
	}
	return uploads.Acknowledge()
}

func reportProgress(ctx context.Context, out io.Writer, uploads *upload.Orchestrator) {
	last := -1
	for {
		select {
		case <-ctx.Done():
			if last >= 0 {
				fmt.Fprintln(out)
			}
			return
		case <-uploads.Changed():
			draft := uploads.Draft()
			if draft.State == upload.StateUploadingPrimary && draft.Progress != last {
				last = draft.Progress
				fmt.Fprintf(out, "\ruploading %3d%%", last)
			}
		}
	}
}

func declaredType(path string) string {
	return mime.TypeByExtension(strings.ToLower(filepath.Ext(path)))
}

func newWatchCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "watch",
		Short: "Follow catalog changes live",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withSession(cmd, func(session clientSession) error {
				ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
				defer stop()

				listing := session.app.Catalog.Videos()
				defer listing.Close()

				watchErr := make(chan error, 1)
				go func() {
					watchErr <- session.app.WatchCatalog(ctx)
				}()

				out := cmd.OutOrStdout()
				var printed time.Time
				for {
					snapshot := listing.Snapshot()
					if snapshot.HasData && !snapshot.Fetching && snapshot.UpdatedAt.After(printed) {
						printed = snapshot.UpdatedAt
						fmt.Fprintf(out, "-- %s --\n", printed.Local().Format(time.TimeOnly))
						printVideos(out, snapshot.Data)
					}
					select {
					case <-ctx.Done():
						return <-watchErr
					case <-listing.Changed():
					}
				}
			})
		},
	}
}
