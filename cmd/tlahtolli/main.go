// Tlahtolli is the interactive terminal client for the tlahtolli assistant.
// It drives the four interaction surfaces (chat, voice, image text
// extraction, and PDF question answering) against a running tlahtollid
// gateway.
//
// Usage:
//
//	tlahtolli [flags]
//	tlahtolli --config /path/to/tlahtolli.yaml
package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"

	"github.com/joho/godotenv"

	"tlahtolli/internal/assistant"
	"tlahtolli/internal/audio"
	"tlahtolli/internal/camera"
	"tlahtolli/internal/config"
	"tlahtolli/internal/session"
)

// version is set at build time via ldflags.
var version = "dev"

func main() {
	showVersion := flag.Bool("version", false, "print version and exit")
	configFile := flag.String("config", "", "path to config file (e.g. configs/tlahtolli.local.yaml)")
	flag.Parse()

	if *showVersion {
		fmt.Printf("tlahtolli %s\n", version)
		os.Exit(0)
	}

	_ = godotenv.Load()

	cfg, err := config.Load(*configFile)
	if err != nil {
		slog.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}
	config.SetupLogging(cfg.Logging)

	ctx, cancel := signal.NotifyContext(context.Background(),
		syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	scanner := bufio.NewScanner(os.Stdin)

	client := assistant.New(cfg.Client.ProxyURL)
	recorder := audio.NewRecorder(cfg.Audio)
	player := audio.NewManager(audio.NewFFPlay(cfg.Audio.PlayerCommand))
	mic := session.MicrophoneFunc(func(ctx context.Context) (session.Recording, error) {
		return recorder.Start(ctx)
	})

	// When the camera cannot be acquired the extraction surface falls back
	// to asking for an image path on stdin.
	fallback := session.FileSourceFunc(func(ctx context.Context) ([]byte, error) {
		fmt.Print("camera unavailable, image path: ")
		if !scanner.Scan() {
			return nil, fmt.Errorf("no image path provided")
		}
		return os.ReadFile(strings.TrimSpace(scanner.Text()))
	})

	chat := session.NewChatSession(client, mic, player)
	voice := session.NewVoiceSession(client, mic, player)
	extraction := session.NewExtractionSession(client, player,
		camera.NewFrameGrabber(cfg.Camera), fallback)
	pdf := session.NewPDFSession(client, player)

	fmt.Printf("tlahtolli %s, gateway %s (type 'help')\n", version, cfg.Client.ProxyURL)

	for {
		fmt.Print("> ")
		if !scanner.Scan() {
			break
		}
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		cmd, arg, _ := strings.Cut(line, " ")
		arg = strings.TrimSpace(arg)

		switch cmd {
		case "say":
			if err := chat.SubmitText(ctx, arg); err != nil {
				fmt.Println("error:", err)
				continue
			}
			printTail(chat, 2)

		case "rec":
			toggleRecording(ctx, chat, func() { printTail(chat, 2) })

		case "voice":
			toggleVoice(ctx, voice)

		case "replay":
			replay(ctx, chat, player, arg)

		case "log":
			printTail(chat, len(chat.Messages()))

		case "snap":
			if err := extraction.CaptureAndExtract(ctx); err != nil {
				fmt.Println("error:", err)
			}
			printExtraction(extraction)

		case "extract":
			image, err := os.ReadFile(arg)
			if err != nil {
				fmt.Println("error:", err)
				continue
			}
			if err := extraction.Extract(ctx, image); err != nil {
				fmt.Println("error:", err)
			}
			printExtraction(extraction)

		case "pdf":
			data, err := os.ReadFile(arg)
			if err != nil {
				fmt.Println("error:", err)
				continue
			}
			ack, err := pdf.Upload(ctx, data, arg)
			if err != nil {
				fmt.Println("error uploading PDF:", err)
				continue
			}
			fmt.Println(ack)

		case "ask":
			ex, err := pdf.Ask(ctx, arg)
			if err != nil {
				fmt.Println("error:", err)
				continue
			}
			fmt.Println(ex.Answer)

		case "history":
			for _, ex := range pdf.Exchanges() {
				fmt.Printf("Q: %s\nA: %s\n", ex.Question, ex.Answer)
			}

		case "reset":
			pdf.Reset()
			extraction.Reset()
			fmt.Println("reset")

		case "help":
			printHelp()

		case "quit", "exit":
			player.Stop()
			return

		default:
			fmt.Println("unknown command (type 'help')")
		}
	}
}

func toggleRecording(ctx context.Context, chat *session.ChatSession, after func()) {
	if chat.State() == session.StateRecording {
		fmt.Println("processing...")
		if err := chat.StopRecording(ctx); err != nil {
			fmt.Println("error:", err)
			return
		}
		after()
		return
	}
	if err := chat.StartRecording(ctx); err != nil {
		fmt.Println("error:", err)
		return
	}
	fmt.Println("recording... type 'rec' to stop")
}

func toggleVoice(ctx context.Context, voice *session.VoiceSession) {
	if voice.State() == session.StateRecording {
		fmt.Println("processing...")
		if err := voice.StopRecording(ctx); err != nil {
			fmt.Println("error:", err)
			return
		}
		if reply := voice.LastReply(); reply != "" {
			fmt.Println(reply)
		}
		return
	}
	if err := voice.StartRecording(ctx); err != nil {
		fmt.Println("error:", err)
		return
	}
	fmt.Println("recording... type 'voice' to stop")
}

func replay(ctx context.Context, chat *session.ChatSession, player *audio.Manager, arg string) {
	if arg == "" || arg == "last" {
		if err := player.ReplayLast(); err != nil {
			fmt.Println("error:", err)
		}
		return
	}
	n, err := strconv.Atoi(arg)
	messages := chat.Messages()
	if err != nil || n < 1 || n > len(messages) {
		fmt.Println("usage: replay [last|<message number>]")
		return
	}
	if err := chat.Replay(ctx, messages[n-1].ID); err != nil {
		fmt.Println("error:", err)
	}
}

func printTail(chat *session.ChatSession, n int) {
	messages := chat.Messages()
	if n > len(messages) {
		n = len(messages)
	}
	for i, msg := range messages[len(messages)-n:] {
		who := "assistant"
		if msg.IsUser {
			who = "you"
		}
		fmt.Printf("[%d] %s: %s\n", len(messages)-n+i+1, who, msg.Text)
	}
}

func printExtraction(extraction *session.ExtractionSession) {
	result, ok := extraction.Result()
	if !ok {
		return
	}
	if result.Text == "" {
		fmt.Println("No text found in image")
		return
	}
	fmt.Println(result.Text)
}

func printHelp() {
	fmt.Print(`commands:
  say <text>       send a chat message
  rec              start/stop a chat voice recording
  voice            start/stop a voice-only exchange
  replay [n|last]  replay a message's audio, or the last response
  log              print the conversation
  snap             capture a camera frame and extract its text
  extract <path>   extract text from an image file
  pdf <path>       upload a PDF to chat with
  ask <question>   ask about the uploaded PDF
  history          print the PDF question/answer history
  reset            reset the PDF and extraction surfaces
  quit             exit
`)
}
