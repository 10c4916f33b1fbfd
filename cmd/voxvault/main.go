package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/joho/godotenv"
	engine "github.com/voxvault/voxvault-core/core"
	"github.com/voxvault/voxvault-core/core/audio/miniaudio"
	"github.com/voxvault/voxvault-core/vaultapi"
)

func main() {
	printTools := flag.Bool("tools", false, "print the client tool manifest as JSON and exit")
	flag.Parse()

	if *printTools {
		manifest, err := json.MarshalIndent(engine.ToolManifest(), "", "  ")
		if err != nil {
			log.Fatalf("Failed to render tool manifest: %v", err)
		}
		fmt.Println(string(manifest))
		return
	}

	// Local overrides for development; the environment wins in production.
	_ = godotenv.Load()

	vault, err := vaultapi.NewClientFromEnv()
	if err != nil {
		log.Fatalf("Failed to configure vault client: %v", err)
	}

	device, err := miniaudio.NewClient()
	if err != nil {
		log.Fatalf("Failed to open audio device: %v", err)
	}

	voice := engine.NewConversationEngine(
		engine.WithSessionProvider(vault),
		engine.WithVaultService(vault),
		engine.WithAudioInput(device),
		engine.WithAudioRenderer(device),
	)
	defer voice.Close()

	program := tea.NewProgram(newModel(voice), tea.WithAltScreen())

	voice.SetHandlers(engine.Handlers{
		OnStateChange: func(state engine.ConversationState) {
			program.Send(stateChangedMsg{state: state})
		},
		OnUserTranscript: func(transcript string) {
			program.Send(transcriptMsg{speaker: speakerUser, text: transcript})
		},
		OnAgentTranscript: func(transcript string) {
			program.Send(transcriptMsg{speaker: speakerAgent, text: transcript})
		},
		OnError: func(message string) {
			program.Send(errorMsg{message: message})
		},
		OnVaultChanged: func() {
			program.Send(vaultChangedMsg{})
		},
	})

	if _, err := program.Run(); err != nil {
		fmt.Fprintf(os.Stderr, "voxvault: %v\n", err)
		os.Exit(1)
	}
}
