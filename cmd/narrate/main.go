package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/inchinet/nativespeaker/internal/audio"
	"github.com/inchinet/nativespeaker/internal/capability"
	"github.com/inchinet/nativespeaker/internal/config"
	"github.com/inchinet/nativespeaker/internal/narration"
	"github.com/inchinet/nativespeaker/internal/protocol"
	"github.com/inchinet/nativespeaker/internal/stt"
	"github.com/inchinet/nativespeaker/internal/translate"
	"github.com/inchinet/nativespeaker/internal/tts"
)

var version = "0.1.0-dev"

func main() {
	if len(os.Args) < 2 {
		fmt.Fprintln(os.Stderr, "expected 'translate', 'speak', 'transcribe' or 'version'")
		os.Exit(2)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var err error
	switch os.Args[1] {
	case "translate":
		err = runTranslate(ctx, os.Args[2:])
	case "speak":
		err = runSpeak(ctx, os.Args[2:])
	case "transcribe":
		err = runTranscribe(ctx, os.Args[2:])
	case "version":
		fmt.Println(version)
	default:
		fmt.Fprintf(os.Stderr, "unknown command %q\n", os.Args[1])
		os.Exit(2)
	}
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func loadConfig(path string) (config.Config, *slog.Logger, error) {
	cfg, err := config.Load(path)
	if err != nil {
		return cfg, nil, err
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn}))
	return cfg, logger, nil
}

func runTranslate(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("translate", flag.ExitOnError)
	configPath := fs.String("config", "", "Path to configuration file")
	target := fs.String("to", "", "Target language (defaults to the speech target)")
	_ = fs.Parse(args)

	cfg, logger, err := loadConfig(*configPath)
	if err != nil {
		return err
	}
	if *target == "" {
		*target = cfg.Translation.SpeechTarget
	}
	text := strings.Join(fs.Args(), " ")
	if text == "" {
		return errors.New("usage: narrate translate [-to lang] text...")
	}
	gateway := translate.NewGateway(cfg.Translation, logger)
	fmt.Println(gateway.TranslateText(ctx, text, *target))
	return nil
}

// runSpeak narrates a text file into an audio file, the offline counterpart
// of the speak button.
func runSpeak(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("speak", flag.ExitOnError)
	configPath := fs.String("config", "", "Path to configuration file")
	file := fs.String("file", "", "Text file to narrate")
	out := fs.String("out", "speech.wav", "Output audio path")
	_ = fs.Parse(args)

	cfg, logger, err := loadConfig(*configPath)
	if err != nil {
		return err
	}
	synth, err := tts.New(cfg.TTS)
	if err != nil {
		return err
	}
	sink := tts.NewFileSink(*out)

	opts := narration.OptionsFromConfig(cfg)
	opts.Logger = logger
	opts.Translator = translate.NewGateway(cfg.Translation, logger)
	opts.Synthesizer = synth
	opts.Sink = sink
	opts.Capabilities = capability.Probe(cfg, false)
	controller := narration.New(ctx, opts)
	defer controller.Close()

	if *file != "" {
		f, err := os.Open(*file)
		if err != nil {
			return err
		}
		err = controller.LoadFile(f.Name(), f)
		f.Close()
		if err != nil {
			return err
		}
	} else {
		controller.SetText(strings.Join(fs.Args(), " "))
	}

	if pb := controller.SpeakCurrent(); pb != nil {
		select {
		case <-pb.Done():
		case <-ctx.Done():
			controller.Stop()
			<-pb.Done()
		}
	}
	status := controller.Snapshot().TTSStatus
	if status != narration.StatusReady {
		return errors.New(status)
	}
	fmt.Println(sink.LastPath())
	return nil
}

// runTranscribe feeds a WAV recording through the record flow and saves the
// translated transcript.
func runTranscribe(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("transcribe", flag.ExitOnError)
	configPath := fs.String("config", "", "Path to configuration file")
	input := fs.String("audio", "", "WAV recording to transcribe")
	dir := fs.String("dir", "", "Directory for the transcript (defaults to export.directory)")
	_ = fs.Parse(args)

	if *input == "" {
		return errors.New("usage: narrate transcribe -audio recording.wav")
	}
	cfg, logger, err := loadConfig(*configPath)
	if err != nil {
		return err
	}
	if *dir == "" {
		*dir = cfg.Export.Directory
	}
	recognizer, err := stt.New(cfg.STT)
	if err != nil {
		return err
	}
	source, err := wavSource(*input)
	if err != nil {
		return err
	}

	opts := narration.OptionsFromConfig(cfg)
	opts.Logger = logger
	opts.Translator = translate.NewGateway(cfg.Translation, logger)
	opts.Recognizer = recognizer
	opts.Source = source
	opts.Capabilities = capability.Probe(cfg, true)

	path, err := transcribe(ctx, opts, *dir, 2*time.Minute)
	if err != nil {
		return err
	}
	fmt.Println(path)
	return nil
}

var errNothingRecognized = errors.New("nothing was recognized in the recording")

// transcribe runs one record cycle and saves the translated transcript into
// dir. It returns once the controller delivers a transcript or reports an
// error status.
func transcribe(ctx context.Context, opts narration.Options, dir string, timeout time.Duration) (string, error) {
	results := make(chan string, 1)
	publish := opts.OnTranscript
	opts.OnTranscript = func(sessionID string, result stt.TranscriptResult, translated string) {
		if publish != nil {
			publish(sessionID, result, translated)
		}
		select {
		case results <- translated:
		default:
		}
	}
	controller := narration.New(ctx, opts)
	defer controller.Close()

	failed := make(chan string, 1)
	unsubscribe := controller.Subscribe(func(s narration.Snapshot) {
		if !s.Recording && s.STTStatus != "" {
			select {
			case failed <- s.STTStatus:
			default:
			}
		}
	})
	defer unsubscribe()

	if err := controller.ToggleRecord(); err != nil {
		return "", err
	}
	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case translated := <-results:
		if strings.TrimSpace(translated) == "" {
			return "", errNothingRecognized
		}
	case status := <-failed:
		return "", errors.New(status)
	case <-ctx.Done():
		return "", ctx.Err()
	case <-timer.C:
		return "", errors.New("transcription timed out")
	}

	export, err := controller.Download()
	if err != nil {
		return "", err
	}
	return export.Save(dir)
}

type fileSource struct {
	frame protocol.AudioFrame
}

func wavSource(path string) (*fileSource, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	pcm, sampleRate, channels, err := audio.ReadPCM(f)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	return &fileSource{frame: protocol.AudioFrame{
		SessionID:  path,
		SampleRate: sampleRate,
		Channels:   channels,
		PCM:        pcm,
		Final:      true,
	}}, nil
}

func (s *fileSource) Open(context.Context) (<-chan protocol.AudioFrame, error) {
	frames := make(chan protocol.AudioFrame, 1)
	frames <- s.frame
	return frames, nil
}
