// Package config loads layered configuration (defaults → optional .env →
// JSON file → CLI flags → environment), grounded directly on livesim2's
// cmd/livesim2/app/config.go koanf/pflag pipeline. godotenv.Load is
// inserted ahead of the koanf env.Provider pass so a local .env can seed
// the same environment variables the operator would otherwise export.
package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/joho/godotenv"
	"github.com/knadh/koanf"
	"github.com/knadh/koanf/parsers/json"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/posflag"
	"github.com/knadh/koanf/providers/structs"
	"github.com/spf13/pflag"

	"41.neocities.org/dashhls/internal/logging"
)

// Config holds every operator-tunable parameter the ingest loop exposes.
type Config struct {
	LogFormat string `json:"logformat"`
	LogLevel  string `json:"loglevel"`

	Service string `json:"service"`
	ID      string `json:"id"`

	ApiformatMpd string `json:"apiformat_mpd"`
	ApiformatKey string `json:"apiformat_key"`

	DecryptScript string `json:"decrypt_script"`
	OutPath       string `json:"outpath"`
	RepoRoot      string `json:"reporoot"`

	MaxSegmentNum int `json:"max_segment_num"`
	Threads       int `json:"threads"`

	Tier      string   `json:"tier"` // low|mid|high
	Languages []string `json:"languages"`

	MetricsPort int `json:"metrics_port"`

	ClientID         string `json:"client_id"`          // optional direct widevine license mode
	PrivateKey       string `json:"private_key"`
	CertificateChain string `json:"certificate_chain"`  // optional direct playready license mode
	EncryptSignKey   string `json:"encrypt_sign_key"`
}

var Default = Config{
	LogFormat:     logging.FormatPretty,
	LogLevel:      "info",
	ApiformatMpd:  "https://example.invalid/api/mpd?service={service}&id={id}",
	ApiformatKey:  "https://example.invalid/api/key?service={service}&id={id}&pssh={pssh-box}",
	DecryptScript: "./decrypt.sh",
	OutPath:       "./hls",
	RepoRoot:      ".",
	MaxSegmentNum: 6,
	Threads:       1,
	Tier:          "mid",
	MetricsPort:   9100,
}

// Load implements the layered pipeline: defaults, .env, JSON config file,
// CLI flags, then environment variables (highest precedence, matching
// livesim2's LIVESIM_-prefixed override pass).
func Load(args []string) (*Config, error) {
	_ = godotenv.Load() // optional; absence is not an error

	k := koanf.New(".")
	if err := k.Load(structs.Provider(Default, "json"), nil); err != nil {
		return nil, err
	}

	f := pflag.NewFlagSet("dashhls", pflag.ContinueOnError)
	f.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: dashhls [options]\n")
		f.PrintDefaults()
	}
	cfgFile := f.String("cfg", "", "path to a JSON config file")
	f.String("logformat", k.String("logformat"), fmt.Sprintf("log format [%s]", strings.Join(logging.Formats, ", ")))
	f.String("loglevel", k.String("loglevel"), "log level [DEBUG, INFO, WARN, ERROR]")
	f.String("service", k.String("service"), "operator service name")
	f.String("id", k.String("id"), "stream id")
	f.String("apiformat-mpd", k.String("apiformat_mpd"), "manifest-URL API template")
	f.String("apiformat-key", k.String("apiformat_key"), "decryption-key API template")
	f.String("decrypt-script", k.String("decrypt_script"), "path to the decrypter sub-process")
	f.String("outpath", k.String("outpath"), "HLS output directory")
	f.String("reporoot", k.String("reporoot"), "working directory root")
	f.Int("max-segment-num", k.Int("max_segment_num"), "live window size in segments")
	f.Int("threads", k.Int("threads"), "segment download worker count")
	f.String("tier", k.String("tier"), "bandwidth tier [low, mid, high]")
	f.StringSlice("languages", k.Strings("languages"), "preferred audio languages, in order")
	f.Int("metrics-port", k.Int("metrics_port"), "debug/metrics HTTP port")
	f.String("client-id", k.String("client_id"), "widevine client id path (direct license mode)")
	f.String("private-key", k.String("private_key"), "widevine private key path (direct license mode)")
	f.String("certificate-chain", k.String("certificate_chain"), "playready certificate chain path (direct license mode)")
	f.String("encrypt-sign-key", k.String("encrypt_sign_key"), "playready encrypt/sign key path (direct license mode)")
	if err := f.Parse(args); err != nil {
		return nil, fmt.Errorf("config: command line parse: %w", err)
	}

	if *cfgFile != "" {
		if err := k.Load(file.Provider(*cfgFile), json.Parser()); err != nil {
			return nil, fmt.Errorf("config: load file: %w", err)
		}
	}

	if err := k.Load(posflag.ProviderWithFlag(f, ".", k, func(fl *pflag.Flag) (string, interface{}) {
		return strings.ReplaceAll(fl.Name, "-", "_"), posflag.FlagVal(f, fl)
	}), nil); err != nil {
		return nil, fmt.Errorf("config: parsing cli: %w", err)
	}

	k.Load(env.Provider("DASHHLS_", ".", func(s string) string {
		return strings.ToLower(strings.TrimPrefix(s, "DASHHLS_"))
	}), nil)

	var cfg Config
	if err := k.UnmarshalWithConf("", &cfg, koanf.UnmarshalConf{Tag: "json"}); err != nil {
		return nil, err
	}
	return &cfg, nil
}
