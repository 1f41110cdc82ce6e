package main

import (
	"flag"
	"log"
	"os"

	"github.com/unixpickle/anymem"
	"github.com/unixpickle/anymem/anyqa"
	"github.com/unixpickle/anyvec/anyvec32"
	"github.com/unixpickle/rip"
)

func main() {
	var configPath string
	var modelPath string
	var summary bool
	flag.StringVar(&configPath, "config", "", "YAML config file")
	flag.StringVar(&modelPath, "model", "", "model file (default: <run ID>.model)")
	flag.BoolVar(&summary, "summary", false, "print a model summary before training")
	flag.Parse()

	log.Println("Setting up...")

	cfg := anyqa.DefaultConfig()
	if configPath != "" {
		var err error
		cfg, err = anyqa.LoadConfig(configPath)
		if err != nil {
			die(err)
		}
	}
	if cfg.Data.TrainFile == "" {
		die("no training file in config")
	}

	var run *anyqa.Run
	if _, err := os.Stat(modelPath); modelPath != "" && err == nil {
		log.Println("Loading model...")
		run, err = anyqa.LoadRun(modelPath, cfg)
		if err != nil {
			die(err)
		}
	} else {
		run = anyqa.NewRun(cfg)
	}
	defer run.Close()
	if modelPath == "" {
		modelPath = run.ID.String() + ".model"
	}
	log.Println("Run ID:", run.ID)

	train, err := anyqa.ReadInstanceFiles(cfg.Data.TrainFile, cfg.Data.TrainBackgroundFile)
	if err != nil {
		die(err)
	}
	var validation []*anyqa.RawInstance
	if cfg.Data.ValidationFile != "" {
		validation, err = anyqa.ReadInstanceFiles(cfg.Data.ValidationFile,
			cfg.Data.ValidationBackgroundFile)
		if err != nil {
			die(err)
		}
	}
	trainSamples, valSamples, err := run.PrepareData(train, validation)
	if err != nil {
		die(err)
	}
	log.Printf("Using %d training and %d validation questions", len(trainSamples),
		len(valSamples))

	if run.Model == nil {
		if err := run.BuildModel(anyvec32.CurrentCreator()); err != nil {
			die(err)
		}
	}
	if summary {
		log.Print("Model summary:\n" + run.Model.Summary())
	}

	run.StatusFunc = func(epoch, iter int, cost float64) {
		log.Printf("epoch %d iter %d: cost=%v", epoch, iter, cost)
	}
	run.ValidationFunc = func(epoch int, cost, accuracy float64) {
		log.Printf("epoch %d: validation cost=%v accuracy=%.3f", epoch, cost, accuracy)
	}
	run.DebugFunc = func(epoch int, obs []*anymem.Observation) {
		for _, o := range obs {
			o.Fprint(os.Stderr)
		}
	}

	log.Println("Press ctrl+c once to stop...")
	if err := run.Train(trainSamples, valSamples, rip.NewRIP().Chan()); err != nil {
		die(err)
	}

	log.Println("Saving model to", modelPath)
	if err := run.Save(modelPath); err != nil {
		die(err)
	}
}

func die(args ...interface{}) {
	log.Println(args...)
	os.Exit(1)
}
