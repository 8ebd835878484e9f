package main

import (
	"fmt"
	"log"

	"lukechampine.com/flagg"

	"tunewire/config"
	"tunewire/shazam"
)

var (
	rootUsage = `Usage:
    tunewire [flags] <command>

Commands:
    audio-file-to-fingerprint       print a signature's data-URI for a file
    audio-file-to-recognized-song   recognize a file, single-shot
    fingerprint-to-recognized-song  recognize an already-encoded signature URI
    microphone-to-recognized-song   recognize from the microphone, single-shot
    listen                          continuously recognize from the microphone
    recognize                       recognize from a file or the microphone, single-shot
`
	versionUsage       = rootUsage
	fingerprintUsage   = "Usage:\n    tunewire audio-file-to-fingerprint <file>\n"
	fileRecognizeUsage = "Usage:\n    tunewire audio-file-to-recognized-song <file>\n"
	uriRecognizeUsage  = "Usage:\n    tunewire fingerprint-to-recognized-song <uri>\n"
	micRecognizeUsage  = "Usage:\n    tunewire microphone-to-recognized-song [-d device]\n"
	listenUsage        = "Usage:\n    tunewire listen [-d device] [--json|--csv] [--disable-mpris]\n"
	recognizeUsage     = "Usage:\n    tunewire recognize [-d device] [--json|--csv] [file]\n"
)

func main() {
	log.SetFlags(0)

	rootCmd := flagg.Root
	rootCmd.Usage = flagg.SimpleUsage(rootCmd, rootUsage)
	versionCmd := flagg.New("version", versionUsage)

	fingerprintCmd := flagg.New("audio-file-to-fingerprint", fingerprintUsage)

	fileRecognizeCmd := flagg.New("audio-file-to-recognized-song", fileRecognizeUsage)

	uriRecognizeCmd := flagg.New("fingerprint-to-recognized-song", uriRecognizeUsage)

	micRecognizeCmd := flagg.New("microphone-to-recognized-song", micRecognizeUsage)
	micDevice := micRecognizeCmd.String("d", "", "input device name")

	listenCmd := flagg.New("listen", listenUsage)
	listenDevice := listenCmd.String("d", "", "input device name")
	listenJSON := listenCmd.Bool("json", false, "emit newline-delimited JSON instead of the TUI")
	listenCSV := listenCmd.Bool("csv", false, "emit CSV instead of the TUI")
	listenCmd.Bool("disable-mpris", false, "accepted for compatibility; no MPRIS integration is built")

	recognizeCmd := flagg.New("recognize", recognizeUsage)
	recognizeDevice := recognizeCmd.String("d", "", "input device name")
	recognizeJSON := recognizeCmd.Bool("json", false, "emit JSON instead of plain text")
	recognizeCSV := recognizeCmd.Bool("csv", false, "emit CSV instead of plain text")

	cmd := flagg.Parse(flagg.Tree{
		Cmd: rootCmd,
		Sub: []flagg.Tree{
			{Cmd: versionCmd},
			{Cmd: fingerprintCmd},
			{Cmd: fileRecognizeCmd},
			{Cmd: uriRecognizeCmd},
			{Cmd: micRecognizeCmd},
			{Cmd: listenCmd},
			{Cmd: recognizeCmd},
		},
	})
	args := cmd.Args()
	cfg := config.Load()

	switch cmd {
	case rootCmd, versionCmd:
		if len(args) > 0 {
			cmd.Usage()
			return
		}
		fmt.Println("tunewire v0.1.0")

	case fingerprintCmd:
		if len(args) != 1 {
			cmd.Usage()
			return
		}
		sig, err := computeSignatureFromFile(args[0])
		if err != nil {
			log.Fatalln("Error:", err)
		}
		fmt.Println(sig.EncodeURI())

	case fileRecognizeCmd:
		if len(args) != 1 {
			cmd.Usage()
			return
		}
		sig, err := computeSignatureFromFile(args[0])
		if err != nil {
			log.Fatalln("Error:", err)
		}
		result, err := identifyOnce(cfg, sig)
		printPrettyResult(result, err)

	case uriRecognizeCmd:
		if len(args) != 1 {
			cmd.Usage()
			return
		}
		sig, err := shazam.DecodeURI(args[0])
		if err != nil {
			log.Fatalln("Error:", err)
		}
		result, err := identifyOnce(cfg, sig)
		printPrettyResult(result, err)

	case micRecognizeCmd:
		if len(args) != 0 {
			cmd.Usage()
			return
		}
		runSingleShotMic(cfg, *micDevice, false, false)

	case listenCmd:
		if len(args) != 0 {
			cmd.Usage()
			return
		}
		runListen(cfg, *listenDevice, *listenJSON, *listenCSV)

	case recognizeCmd:
		if len(args) > 1 {
			cmd.Usage()
			return
		}
		if len(args) == 1 {
			runSingleShotFile(cfg, args[0], *recognizeJSON, *recognizeCSV)
		} else {
			runSingleShotMic(cfg, *recognizeDevice, *recognizeJSON, *recognizeCSV)
		}
	}
}
