// SPDX-License-Identifier: MIT
package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"spectral/internal/analysis"
	"spectral/internal/config"
	"spectral/pkg/build"
)

// Commands selected on the command line.
const (
	CommandRun     = "run"
	CommandList    = "list"
	CommandPick    = "pick"
	CommandAnalyze = "analyze"
	CommandConfig  = "config"
)

// Options is the parsed command line: the resolved configuration plus the
// flags that only affect this invocation.
type Options struct {
	Config      *config.Config
	Command     string
	AnalyzeFile string
	OutputFile  string // Explicit recording file, empty for a timestamped name.
	Watch       bool
	TUI         bool
	Verbose     bool
	TOML        bool // Print the config as TOML instead of YAML.

	flags   flagValues
	changed map[string]bool // Flags set explicitly on the command line.
}

// flagValues holds raw flag values until the config file is loaded.
type flagValues struct {
	configPath      string
	deviceID        int
	channels        int
	sampleRate      float64
	framesPerBuffer int
	lowLatency      bool
	fftOrder        int
	window          string
	overlap         float64
	stereo          bool
	udpTarget       string
	websocketAddr   string
	record          bool
	output          string
	watch           bool
	tui             bool
	verbose         bool
}

// ParseArgs parses args (without the program name) into Options.
func ParseArgs(args []string) (*Options, error) {
	buildInfo := build.GetBuildFlags()
	options := &Options{Command: CommandRun}
	var flags flagValues

	rootCmd := &cobra.Command{
		Use:           buildInfo.Name,
		Short:         buildInfo.Description,
		Version:       buildInfo.Version,
		SilenceErrors: true,
		SilenceUsage:  true,
		CompletionOptions: cobra.CompletionOptions{
			DisableDefaultCmd:   true,
			DisableDescriptions: true,
			DisableNoDescFlag:   true,
			HiddenDefaultCmd:    true,
		},
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			options.Command = CommandRun
			return nil
		},
	}

	// Display help message
	rootCmd.SetHelpCommand(&cobra.Command{Hidden: true})

	rootCmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List available audio devices",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			options.Command = CommandList
		},
	})

	rootCmd.AddCommand(&cobra.Command{
		Use:   "pick",
		Short: "Choose an input device interactively, then start analysing",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			options.Command = CommandPick
		},
	})

	rootCmd.AddCommand(&cobra.Command{
		Use:   "analyze <file.wav>",
		Short: "Analyse a WAV file offline and print one line per frame",
		Args:  cobra.ExactArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			options.Command = CommandAnalyze
			options.AnalyzeFile = args[0]
		},
	})

	configCmd := &cobra.Command{
		Use:   "config",
		Short: "Print the effective configuration after files, environment and flags",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			options.Command = CommandConfig
		},
	}
	configCmd.Flags().BoolVar(&options.TOML, "toml", false, "Print TOML instead of YAML")
	rootCmd.AddCommand(configCmd)

	pf := rootCmd.PersistentFlags()

	pf.StringVar(&flags.configPath, "config", "",
		"Configuration file (YAML or TOML). Defaults to ./config.{yaml,yml,toml} if present")

	// Audio Device Configuration
	pf.IntVarP(&flags.deviceID, "device", "d", config.DefaultDeviceID,
		"Specify input device ID. Use 'list' command to see available devices.")
	pf.IntVarP(&flags.channels, "channels", "c", config.DefaultChannels,
		"Number of input channels (1=mono, 2=stereo)")
	pf.Float64VarP(&flags.sampleRate, "sample-rate", "s", config.DefaultSampleRate,
		"Sample rate, measured in Hertz (Hz)")
	pf.IntVarP(&flags.framesPerBuffer, "frames-per-buffer", "b", config.DefaultFramesPerBuffer,
		"The number of frames per buffer (affects latency)")
	pf.BoolVarP(&flags.lowLatency, "low-latency", "l", false,
		"Use low latency mode for real-time processing")

	// Analysis Configuration
	pf.IntVar(&flags.fftOrder, "fft-order", config.DefaultFFTOrder,
		fmt.Sprintf("FFT size as a power of two, %d..%d (1024..8192 points)", analysis.MinFFTOrder, analysis.MaxFFTOrder))
	pf.StringVarP(&flags.window, "window", "w", config.DefaultWindow,
		"Window function: hann, blackman-harris, hamming, blackman, blackman-nuttall, nuttall")
	pf.Float64Var(&flags.overlap, "overlap", config.DefaultOverlap,
		fmt.Sprintf("Frame overlap fraction, 0..%.3f", analysis.MaxOverlap))
	pf.BoolVar(&flags.stereo, "stereo", false,
		"Emit stereo frames (magnitude + pan) instead of a mono downmix")

	// Outputs
	pf.StringVar(&flags.udpTarget, "udp", "",
		"Publish frames as UDP packets to host:port")
	pf.StringVar(&flags.websocketAddr, "websocket", "",
		"Serve frames over WebSocket on host:port")
	pf.BoolVar(&flags.tui, "tui", false,
		"Show the terminal monitor")

	// Recording Configuration
	pf.BoolVarP(&flags.record, "record", "r", false,
		"Record the analysed audio to a WAV file")
	pf.StringVarP(&flags.output, "output", "o", "",
		"Recording file name. Default is <output_dir>/capture-YYYYMMDD-HHMMSS.wav")

	pf.BoolVar(&flags.watch, "watch", false,
		"Reload analysis settings when the config file changes")

	// Debug Configuration
	pf.BoolVarP(&flags.verbose, "verbose", "v", false,
		"Show verbose output")

	// cobra falls back to os.Args when given nil.
	if args == nil {
		args = []string{}
	}
	rootCmd.SetArgs(args)
	executed, err := rootCmd.ExecuteC()
	if err != nil {
		return nil, err
	}
	if executed.Flags().Changed("help") || executed.Flags().Changed("version") {
		return nil, nil
	}

	cfg, err := config.LoadConfig(flags.configPath)
	if err != nil {
		return nil, err
	}
	options.flags = flags
	options.changed = make(map[string]bool)
	executed.Flags().Visit(func(f *pflag.Flag) { options.changed[f.Name] = true })
	if err := options.ApplyFlags(cfg); err != nil {
		return nil, err
	}

	options.Config = cfg
	options.OutputFile = flags.output
	options.Watch = flags.watch
	options.TUI = flags.tui
	options.Verbose = flags.verbose
	if options.Watch && cfg.Path == "" {
		return nil, fmt.Errorf("--watch needs a config file")
	}
	return options, nil
}

// ApplyFlags lays the command-line flags over cfg and validates the result.
// A reloaded config file goes through it too, so flags keep winning after
// the file changes.
func (o *Options) ApplyFlags(cfg *config.Config) error {
	o.flags.apply(cfg, func(name string) bool { return o.changed[name] })
	return cfg.Validate()
}

// apply copies every flag the user set explicitly over the loaded config,
// so flags win over the file and the environment.
func (f *flagValues) apply(cfg *config.Config, changed func(string) bool) {
	if changed("device") {
		cfg.Audio.InputDevice = f.deviceID
	}
	if changed("channels") {
		cfg.Audio.InputChannels = f.channels
	}
	if changed("sample-rate") {
		cfg.Audio.SampleRate = f.sampleRate
	}
	if changed("frames-per-buffer") {
		cfg.Audio.FramesPerBuffer = f.framesPerBuffer
	}
	if changed("low-latency") {
		cfg.Audio.LowLatency = f.lowLatency
	}
	if changed("fft-order") {
		cfg.Analysis.FFTOrder = f.fftOrder
	}
	if changed("window") {
		cfg.Analysis.Window = f.window
	}
	if changed("overlap") {
		cfg.Analysis.Overlap = f.overlap
	}
	if changed("stereo") {
		cfg.Analysis.Stereo = f.stereo
	}
	if changed("udp") {
		cfg.Transport.UDPEnabled = f.udpTarget != ""
		cfg.Transport.UDPTargetAddress = f.udpTarget
	}
	if changed("websocket") {
		cfg.Transport.WebSocketEnabled = f.websocketAddr != ""
		cfg.Transport.WebSocketAddress = f.websocketAddr
	}
	if changed("record") {
		cfg.Recording.Enabled = f.record
	}
	if changed("verbose") && f.verbose {
		cfg.Debug = true
		cfg.LogLevel = "debug"
	}
}
