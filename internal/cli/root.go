package cli

import (
	"errors"
	"io"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/yoockh/yoointerview/config"
	"github.com/yoockh/yoointerview/internal/interview"
)

// Streams are the terminal handles a command works against.
type Streams struct {
	In  io.Reader
	Out io.Writer
	Err io.Writer
}

func StdStreams() Streams { return Streams{In: os.Stdin, Out: os.Stdout, Err: os.Stderr} }

func NewRootCommand(s Streams) *cobra.Command {
	root := &cobra.Command{
		Use:           "interview-cli",
		Short:         "Practice a realtime AI interview from the terminal",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.SetIn(s.In)
	root.SetOut(s.Out)
	root.SetErr(s.Err)
	root.AddCommand(newRunCommand(s))
	return root
}

func newRunCommand(s Streams) *cobra.Command {
	settings := config.Load()
	opts := Options{
		APIBaseURL:        settings.APIBaseURL,
		AuthToken:         os.Getenv("INTERVIEW_AUTH_TOKEN"),
		SessionType:       string(interview.TypeGeneral),
		TTS:               "console",
		ConnectTimeout:    settings.ConnectTimeout,
		MinUtteranceChars: settings.MinUtteranceChars,
		Language:          settings.SpeechLanguage,
		DeepgramAPIKey:    settings.DeepgramAPIKey,
		DeepgramModel:     settings.DeepgramModel,
		SettleTimeout:     15 * time.Second,
	}

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Create a session and run the interview interactively",
		Long: `Creates an interview session and connects to it.

Typed lines are sent as answers. Commands:
  /end      finish the interview and show feedback
  /mute     toggle speech capture
  /speaker  toggle spoken interviewer replies
  /video    toggle the camera flag
  /quit     leave without ending the interview`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if _, err := interview.ParseType(opts.SessionType); err != nil {
				return err
			}
			switch opts.TTS {
			case "deepgram", "console", "off":
			default:
				return errors.New("--tts must be one of deepgram, console, off")
			}
			return Run(cmd.Context(), opts, s)
		},
	}

	f := cmd.Flags()
	f.StringVar(&opts.APIBaseURL, "api", opts.APIBaseURL, "engine API base URL")
	f.StringVar(&opts.AuthToken, "token-auth", opts.AuthToken, "bearer JWT for session creation (default $INTERVIEW_AUTH_TOKEN)")
	f.StringVar(&opts.SessionType, "type", opts.SessionType, "interview type: general, technical, behavioral, hr, mixed")
	f.StringVar(&opts.ResumeText, "resume-text", "", "resume text used to tailor questions")
	f.StringVar(&opts.ResumeFile, "resume-file", "", "read resume text from a file")
	f.StringVar(&opts.Voice, "voice", "", "raw 16kHz LINEAR16 audio to transcribe with Google Speech (file path or - for stdin)")
	f.StringVar(&opts.TTS, "tts", opts.TTS, "interviewer voice: deepgram, console, off")
	f.StringVar(&opts.TTSOut, "tts-out", "", "write Deepgram PCM to this file instead of discarding it")
	f.BoolVar(&opts.Script, "script", false, "route typed lines through the capture pipeline like spoken answers")
	f.BoolVar(&opts.Verbose, "verbose", false, "log protocol activity to stderr")
	f.DurationVar(&opts.ConnectTimeout, "connect-timeout", opts.ConnectTimeout, "time allowed for the session to become active")
	f.DurationVar(&opts.SettleTimeout, "settle-timeout", opts.SettleTimeout, "on end of input, wait this long for the interviewer before ending")
	return cmd
}
