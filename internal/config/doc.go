// Package config provides configuration management for the voice
// bridge.
//
// # Overview
//
// The config package uses Viper to load configuration from YAML files
// and environment variables. It provides a type-safe configuration
// structure with validation, default values, and automatic file
// creation.
//
// # Configuration File
//
// The configuration is stored at ~/.cortex-voice/config.yaml and is
// automatically created with sensible defaults on first use. The file
// structure mirrors the Go structs defined in this package.
//
// # Environment Variables
//
// All configuration values can be overridden using environment
// variables with the CORTEX_VOICE_ prefix. Nested fields are separated
// by underscores.
//
// Examples:
//   - CORTEX_VOICE_GEMINI_MODEL=models/gemini-2.0-flash-live-001
//   - CORTEX_VOICE_LOGGING_LEVEL=debug
//   - CORTEX_VOICE_AUDIO_START_MUTED=true
//
// # Backend Descriptions
//
// Capability backends can be declared inline under backends.servers,
// or in a separate JSON file referenced by backends.file. The JSON
// form follows the conventional mcpServers layout:
//
//	{
//	  "mcpServers": {
//	    "ralph": {
//	      "command": "ralph-mcp",
//	      "args": ["--stdio"],
//	      "env": {"RALPH_HOME": "/srv/ralph"}
//	    }
//	  }
//	}
//
// Inline entries win when both declare the same backend name.
package config
