package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"os/signal"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/fatih/color"

	"tunewire/capture"
	"tunewire/config"
	"tunewire/pipeline"
	"tunewire/recognize"
	"tunewire/render"
	"tunewire/resample"
	"tunewire/shazam"
)

// computeSignatureFromFile decodes path to completion and returns its
// rolling signature, for the one-shot audio-file-to-* commands that don't
// need the full capture/process/recognize pipeline.
func computeSignatureFromFile(path string) (shazam.Signature, error) {
	f, err := capture.OpenFile(path, true)
	if err != nil {
		return shazam.Signature{}, err
	}
	defer f.Close()

	acc := shazam.NewAccumulator(resample.TargetSampleRate)
	buf := make([]float32, 4096)
	for {
		n, ok := f.Next(buf)
		if n > 0 {
			acc.Write(buf[:n])
		}
		if !ok {
			break
		}
	}
	return acc.Finalize()
}

func identifyOnce(cfg config.Config, sig shazam.Signature) (recognize.Result, error) {
	client := recognize.NewClient(cfg.Timezone, cfg.RequestInterval)
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	return client.Identify(ctx, sig)
}

// printPrettyResult prints the complete API response as indented JSON,
// for the one-shot file/URI commands. It prints the response verbatim
// rather than a narrowed view so nothing the API returned is discarded.
func printPrettyResult(result recognize.Result, err error) {
	if err != nil {
		log.Fatalln("Error:", err)
	}
	var buf bytes.Buffer
	if err := json.Indent(&buf, result.Raw, "", "  "); err != nil {
		log.Fatalln("Error:", err)
	}
	fmt.Println(buf.String())
}

// newPrintSink builds a non-interactive EventSink for single-shot and
// --json/--csv listen runs.
func newPrintSink(jsonMode, csvMode bool) pipeline.EventSink {
	var csvWriter *render.CSVWriter
	if csvMode {
		csvWriter = render.NewCSVWriter(os.Stdout)
	}
	return pipeline.SinkFunc(func(e pipeline.Event) {
		switch e := e.(type) {
		case pipeline.SongRecognized:
			t := render.FromResult(e.Result, e.At)
			switch {
			case jsonMode:
				render.JSON(os.Stdout, t)
			case csvMode:
				csvWriter.Write(t)
			default:
				color.New(color.FgCyan, color.Bold).Printf("%s", t.Title)
				fmt.Printf(" - %s\n", t.Artist)
			}
		case pipeline.NoMatch:
			if !jsonMode && !csvMode {
				color.New(color.FgHiBlack).Println("no match")
			}
		case pipeline.PipelineError:
			color.New(color.FgRed).Fprintln(log.Writer(), "Error:", e.Err)
		}
	})
}

func runSingleShotFile(cfg config.Config, path string, jsonMode, csvMode bool) {
	source, err := capture.OpenFile(path, !jsonMode && !csvMode)
	if err != nil {
		log.Fatalln("Error:", err)
	}
	defer source.Close()
	runOrchestratorOnce(cfg, source, jsonMode, csvMode)
}

func runSingleShotMic(cfg config.Config, device string, jsonMode, csvMode bool) {
	source, err := capture.OpenMicrophone(device)
	if err != nil {
		log.Fatalln("Error:", err)
	}
	defer source.Close()
	runOrchestratorOnce(cfg, source, jsonMode, csvMode)
}

func runOrchestratorOnce(cfg config.Config, source pipeline.AudioSource, jsonMode, csvMode bool) {
	client := recognize.NewClient(cfg.Timezone, cfg.RequestInterval)
	sink := newPrintSink(jsonMode, csvMode)
	o := pipeline.New(source, resample.TargetSampleRate, client, sink, false)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	o.Run(ctx)
}

// runListen drives the continuous pipeline against the microphone. With
// --json/--csv it prints straight to stdout; otherwise it hands events to
// the bubbletea listen model.
func runListen(cfg config.Config, device string, jsonMode, csvMode bool) {
	source, err := capture.OpenMicrophone(device)
	if err != nil {
		log.Fatalln("Error:", err)
	}
	defer source.Close()

	client := recognize.NewClient(cfg.Timezone, cfg.RequestInterval)

	if jsonMode || csvMode {
		sink := newPrintSink(jsonMode, csvMode)
		o := pipeline.New(source, resample.TargetSampleRate, client, sink, true)
		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
		defer stop()
		o.Run(ctx)
		return
	}

	eventCh := make(chan pipeline.Event, 16)
	sink := pipeline.SinkFunc(func(e pipeline.Event) { eventCh <- e })
	ctx, cancel := context.WithCancel(context.Background())

	o := pipeline.New(source, resample.TargetSampleRate, client, sink, true)
	go func() {
		o.Run(ctx)
		close(eventCh)
	}()

	model := newListenModel(eventCh, cancel)
	if _, err := tea.NewProgram(model).Run(); err != nil {
		log.Fatalln("Error:", err)
	}
	cancel()
}
