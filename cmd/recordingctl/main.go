// Command recordingctl drives the recording transcription HTTP API: upload
// audio, create recordings and sessions, process, retry and inspect them.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/spf13/cobra"

	"recording-transcription-service/internal/models"
	"recording-transcription-service/internal/service/recording"
)

func main() {
	if err := newRootCmd(os.Stdout).Execute(); err != nil {
		os.Exit(1)
	}
}

type options struct {
	server  string
	timeout time.Duration
	out     io.Writer
}

func (o *options) client() *client {
	return newClient(o.server, o.timeout)
}

func newRootCmd(out io.Writer) *cobra.Command {
	opts := &options{out: out}

	root := &cobra.Command{
		Use:          "recordingctl",
		Short:        "Client for the recording transcription service",
		SilenceUsage: true,
	}
	root.PersistentFlags().StringVar(&opts.server, "server", envOr("RECORDING_API", "http://localhost:8080"), "service base URL")
	root.PersistentFlags().DurationVar(&opts.timeout, "timeout", 10*time.Minute, "request timeout")

	root.AddCommand(
		newCreateCmd(opts),
		newChunkCmd(opts),
		newProcessCmd(opts, "process", "Transcribe a pending recording"),
		newProcessCmd(opts, "retry", "Retry a failed recording"),
		newGetCmd(opts),
		newFinalizeCmd(opts),
		newTranscriptCmd(opts),
		newDeleteCmd(opts),
	)
	return root
}

func newCreateCmd(opts *options) *cobra.Command {
	var (
		userID    string
		sessionID string
		segmented bool
		input     string
		output    string
	)
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Upload audio and create a recording, or open a segmented session",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			c := opts.client()

			req := recording.CreateRequest{UserID: userID, SessionID: sessionID, Segmented: segmented}
			files, err := uploadPair(ctx, c, input, output, 0)
			if err != nil {
				return err
			}
			req.AudioFiles = files

			var rec models.Recording
			if err := c.call(ctx, "POST", "/v1/recordings", req, &rec); err != nil {
				return err
			}
			return opts.print(rec)
		},
	}
	cmd.Flags().StringVar(&userID, "user", "", "owning user id")
	cmd.Flags().StringVar(&sessionID, "session", "", "session id for a segmented recording")
	cmd.Flags().BoolVar(&segmented, "segmented", false, "create a parent session instead of a single recording")
	cmd.Flags().StringVar(&input, "input", "", "microphone audio file")
	cmd.Flags().StringVar(&output, "output", "", "system audio file")
	_ = cmd.MarkFlagRequired("user")
	return cmd
}

func newChunkCmd(opts *options) *cobra.Command {
	var (
		userID       string
		segmentIndex int
		input        string
		output       string
	)
	cmd := &cobra.Command{
		Use:   "chunk SESSION_ID",
		Short: "Upload audio and add it as a chunk of a session",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			c := opts.client()

			files, err := uploadPair(ctx, c, input, output, segmentIndex)
			if err != nil {
				return err
			}
			var rec models.Recording
			req := recording.ChunkRequest{UserID: userID, SegmentIndex: segmentIndex, AudioFiles: files}
			if err := c.call(ctx, "POST", "/v1/sessions/"+args[0]+"/chunks", req, &rec); err != nil {
				return err
			}
			return opts.print(rec)
		},
	}
	cmd.Flags().StringVar(&userID, "user", "", "owning user id")
	cmd.Flags().IntVar(&segmentIndex, "segment", 0, "segment index")
	cmd.Flags().StringVar(&input, "input", "", "microphone audio file")
	cmd.Flags().StringVar(&output, "output", "", "system audio file")
	_ = cmd.MarkFlagRequired("input")
	return cmd
}

func newProcessCmd(opts *options, verb, short string) *cobra.Command {
	var async bool
	cmd := &cobra.Command{
		Use:   verb + " RECORDING_ID",
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := "/v1/recordings/" + args[0] + "/" + verb
			if async {
				path += "?async=true"
			}
			var rec models.Recording
			if err := opts.client().call(cmd.Context(), "POST", path, nil, &rec); err != nil {
				return err
			}
			return opts.print(rec)
		},
	}
	cmd.Flags().BoolVar(&async, "async", false, "return once claimed and run on the worker pool")
	return cmd
}

func newGetCmd(opts *options) *cobra.Command {
	var chunks bool
	cmd := &cobra.Command{
		Use:   "get ID",
		Short: "Show a recording, or the chunks of a session with --chunks",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c := opts.client()
			if chunks {
				var recs []models.Recording
				if err := c.call(cmd.Context(), "GET", "/v1/sessions/"+args[0]+"/chunks", nil, &recs); err != nil {
					return err
				}
				return opts.print(recs)
			}
			var rec models.Recording
			if err := c.call(cmd.Context(), "GET", "/v1/recordings/"+args[0], nil, &rec); err != nil {
				return err
			}
			return opts.print(rec)
		},
	}
	cmd.Flags().BoolVar(&chunks, "chunks", false, "treat ID as a session id and list its chunks")
	return cmd
}

func newFinalizeCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "finalize SESSION_ID",
		Short: "Stitch a session's chunk transcripts once every chunk is terminal",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var rec models.Recording
			if err := opts.client().call(cmd.Context(), "POST", "/v1/sessions/"+args[0]+"/finalize", nil, &rec); err != nil {
				return err
			}
			return opts.print(rec)
		},
	}
}

func newTranscriptCmd(opts *options) *cobra.Command {
	var raw bool
	cmd := &cobra.Command{
		Use:   "transcript TRANSCRIPT_ID",
		Short: "Show a transcript",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var t models.Transcript
			if err := opts.client().call(cmd.Context(), "GET", "/v1/transcripts/"+args[0], nil, &t); err != nil {
				return err
			}
			if raw {
				_, err := fmt.Fprintln(opts.out, t.Content)
				return err
			}
			return opts.print(t)
		},
	}
	cmd.Flags().BoolVar(&raw, "text", false, "print only the rendered content")
	return cmd
}

func newDeleteCmd(opts *options) *cobra.Command {
	var audioOnly bool
	cmd := &cobra.Command{
		Use:   "delete RECORDING_ID",
		Short: "Delete a recording, or only its audio with --audio",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := "/v1/recordings/" + args[0]
			if audioOnly {
				var rec models.Recording
				if err := opts.client().call(cmd.Context(), "DELETE", path+"/audio", nil, &rec); err != nil {
					return err
				}
				return opts.print(rec)
			}
			return opts.client().call(cmd.Context(), "DELETE", path, nil, nil)
		},
	}
	cmd.Flags().BoolVar(&audioOnly, "audio", false, "delete only the stored audio")
	return cmd
}

func uploadPair(ctx context.Context, c *client, input, output string, segmentIndex int) ([]models.AudioFile, error) {
	var files []models.AudioFile
	for _, f := range []struct {
		path string
		ch   models.Channel
	}{{input, models.ChannelInput}, {output, models.ChannelOutput}} {
		if f.path == "" {
			continue
		}
		af, err := c.upload(ctx, f.path, f.ch, segmentIndex)
		if err != nil {
			return nil, fmt.Errorf("upload %s: %w", f.path, err)
		}
		files = append(files, *af)
	}
	return files, nil
}

func (o *options) print(v any) error {
	enc := json.NewEncoder(o.out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}
