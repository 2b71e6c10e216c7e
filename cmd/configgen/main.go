package main

import (
	"flag"
	"log"

	"github.com/roboime/simlink/internal/config"
)

func main() {
	output := flag.String("output", "team.toml", "output path for the team config template")
	validate := flag.Bool("validate", false, "validate an existing team config file")
	input := flag.String("input", "team.toml", "team config path for validation")
	force := flag.Bool("force", false, "overwrite existing config file")
	flag.Parse()

	if *validate {
		cfg, err := config.LoadTeamConfig(*input)
		if err != nil {
			log.Fatal(err)
		}
		log.Printf("Validated team config at %s (team=%s players=%d first_unum=%d)",
			*input, cfg.TeamName, cfg.Players, cfg.UniformNumber)
		return
	}

	if err := config.WriteTemplate(*output, *force); err != nil {
		log.Fatal(err)
	}
	log.Printf("Wrote team config template to %s", *output)
}
