package main

import (
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	"gonum.org/v1/gonum/mat"

	"fluorbleed/pkg/config"
	"fluorbleed/pkg/pipeline"
)

const usage = `usage: fluorbleed <command> [flags]

commands:
  calibrate  estimate bleed-through coefficients from control cells
  correct    remove background and bleed-through, optionally compute ratio/Eapp
  measure    background, noise and cell tables without correction
  init       write a default session configuration

run "fluorbleed <command> -h" for the flags of a command`

func main() {
	if len(os.Args) < 2 {
		fmt.Fprintln(os.Stderr, usage)
		os.Exit(1)
	}
	command, args := os.Args[1], os.Args[2:]
	switch command {
	case "calibrate", "correct", "measure", "init":
	default:
		fmt.Fprintf(os.Stderr, "unknown command %q\n\n%s\n", command, usage)
		os.Exit(1)
	}

	fs := flag.NewFlagSet(command, flag.ExitOnError)
	configPath := fs.String("config", "session.yaml", "Session configuration file")
	outputDir := fs.String("output", "", "Output directory (overrides output.dir)")
	estimator := fs.String("estimator", "", "Coefficient estimator, slope or ratio (overrides calibration.estimator)")
	matrixFile := fs.String("matrix", "", "Coefficient matrix CSV (overrides correction.matrixFile and correction.matrix)")
	preview := fs.Bool("preview", false, "Save JPEG previews of every plane with ROI outlines")
	quiet := fs.Bool("quiet", false, "Only print results and warnings")
	if err := fs.Parse(args); err != nil {
		log.Fatalf("Failed to parse flags: %v", err)
	}

	if command == "init" {
		if err := config.CreateDefaultConfigFile(*configPath); err != nil {
			log.Fatalf("Failed to write configuration: %v", err)
		}
		fmt.Printf("Default configuration written to: %s\n", *configPath)
		return
	}

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	// Command-line flags take precedence over the file
	if *outputDir != "" {
		cfg.Output.Dir = *outputDir
	}
	if *estimator != "" {
		cfg.Calibration.Estimator = *estimator
	}
	if *matrixFile != "" {
		cfg.Correction.MatrixFile = *matrixFile
		cfg.Correction.Matrix = nil
	}
	if *preview {
		cfg.Output.Preview = true
	}
	if *quiet {
		cfg.Output.Verbose = false
	}

	session, err := pipeline.NewSession(cfg)
	if err != nil {
		log.Fatalf("Failed to start session: %v", err)
	}

	if cfg.Output.Verbose {
		fmt.Println("================================")
		fmt.Println("FLUORESCENCE BLEED-THROUGH CORRECTION")
		fmt.Println("================================")
	}
	startTime := time.Now()

	switch command {
	case "calibrate":
		cal, err := session.Calibrate()
		if err != nil {
			log.Fatalf("Calibration failed: %v", err)
		}
		fmt.Printf("\nCoefficients (%s, row = from, column = to):\n", cal.Estimate.Method)
		fmt.Printf("%v\n", cal.Estimate.Coefficients)
		fmt.Printf("\nQuality:\n%v\n", mat.Formatted(cal.Estimate.Quality, mat.Squeeze()))

	case "correct":
		res, err := session.Correct()
		if err != nil {
			log.Fatalf("Correction failed: %v", err)
		}
		fmt.Printf("\nCorrected %v\n", res.Corrected)
		if res.Ratio != nil {
			fmt.Println("Ratio planes written")
		}
		if res.Eapp != nil {
			fmt.Println("Eapp planes written")
		}
		if len(res.Measurements.Data) > 0 {
			fmt.Printf("Corrected ROIs:\n%v\n", mat.Formatted(tensorDense(res.Measurements.Rows()), mat.Squeeze()))
		}

	case "measure":
		m, err := session.Measure()
		if err != nil {
			log.Fatalf("Measurement failed: %v", err)
		}
		fmt.Printf("\nBackground: %v\nNoise: %v\n", m.Background.Data, m.Noise.Data)
		fmt.Printf("Cell ROIs:\n%v\n", mat.Formatted(tensorDense(m.Cells.Rows()), mat.Squeeze()))
	}

	fmt.Printf("\nCompleted in %.2f seconds\n", time.Since(startTime).Seconds())
	fmt.Printf("Results saved to: %s\n", session.OutputDir())
}

func tensorDense(rows [][]float64) *mat.Dense {
	if len(rows) == 0 {
		return mat.NewDense(1, 1, nil)
	}
	m := mat.NewDense(len(rows), len(rows[0]), nil)
	for i, r := range rows {
		m.SetRow(i, r)
	}
	return m
}
