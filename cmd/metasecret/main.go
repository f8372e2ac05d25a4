package main

import (
	"bufio"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"time"

	"github.com/spf13/cobra"

	"github.com/metasecret/metasecret/internal/app"
	"github.com/metasecret/metasecret/internal/crypto"
	"github.com/metasecret/metasecret/internal/model"
	"github.com/metasecret/metasecret/internal/store"
	"github.com/metasecret/metasecret/internal/sync"
)

var (
	dbPathFlag    string
	serverFlag    string
	masterKeyFlag string
	vaultNameFlag string
	outputFormat  string
)

// defaultServerURL is the production sync endpoint used when neither
// --server nor META_SERVER_URL override it (§6 "Environment variables").
const defaultServerURL = "https://sync.meta-secret.org"

func main() {
	root := &cobra.Command{
		Use:   "metasecret",
		Short: "A distributed, event-sourced password vault",
	}
	root.PersistentFlags().StringVar(&dbPathFlag, "db", "", "Custom database path (overrides META_DB_PATH and the platform data dir)")
	root.PersistentFlags().StringVar(&serverFlag, "server", "", "Sync server base URL (overrides META_SERVER_URL)")
	root.PersistentFlags().StringVar(&masterKeyFlag, "master-key", "", "Base64 X25519 secret key unwrapping persisted credentials (overrides META_MASTER_KEY)")

	root.AddCommand(
		initDeviceCmd(),
		initUserCmd(),
		infoCmd(),
		signUpCmd(),
		syncCmd(),
		splitCmd(),
		recoverCmd(),
		acceptRecoverCmd(),
		showSecretsCmd(),
		showClaimsCmd(),
		showEventsCmd(),
	)

	if err := root.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func initDeviceCmd() *cobra.Command {
	var deviceName string
	cmd := &cobra.Command{
		Use:   "init-device",
		Short: "Generate (or reuse) this machine's device credentials",
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := openClient()
			if err != nil {
				return err
			}
			defer client.Store.(closer).Close()
			creds, err := client.InitDevice(deviceName)
			if err != nil {
				return err
			}
			fmt.Printf("device id: %s (%s)\n", creds.Device.DeviceId, creds.Device.DeviceName)
			return nil
		},
	}
	hostname, _ := os.Hostname()
	cmd.Flags().StringVar(&deviceName, "name", hostname, "Human-readable name for this device")
	return cmd
}

func initUserCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "init-user",
		Short: "Bind this device to a vault name",
		RunE: func(cmd *cobra.Command, args []string) error {
			if vaultNameFlag == "" {
				return fmt.Errorf("--vault-name is required")
			}
			client, err := openClient()
			if err != nil {
				return err
			}
			defer client.Store.(closer).Close()
			creds, err := client.InitUser(model.VaultName(vaultNameFlag))
			if err != nil {
				return err
			}
			fmt.Printf("user bound to vault %q as device %s\n", creds.VaultName, creds.DeviceCreds.Device.DeviceId)
			return nil
		},
	}
	cmd.Flags().StringVar(&vaultNameFlag, "vault-name", "", "Vault name to join or create")
	return cmd
}

func infoCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "info",
		Short: "Report this device's bootstrap state",
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := openClient()
			if err != nil {
				return err
			}
			defer client.Store.(closer).Close()
			state, err := client.State()
			if err != nil {
				return err
			}
			if outputFormat == "json" {
				return json.NewEncoder(os.Stdout).Encode(map[string]string{"state": string(state)})
			}
			fmt.Println(state)
			return nil
		},
	}
	cmd.Flags().StringVar(&outputFormat, "format", "text", "Output format: text|json")
	return cmd
}

func signUpCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "sign-up",
		Short: "Request membership in this device's vault",
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := openClient()
			if err != nil {
				return err
			}
			defer client.Store.(closer).Close()
			if err := client.SignUp(); err != nil {
				return err
			}
			return client.Sync(2)
		},
	}
}

func syncCmd() *cobra.Command {
	var rounds int
	cmd := &cobra.Command{
		Use:   "sync",
		Short: "Exchange events with the sync server until the two sides converge",
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := openClient()
			if err != nil {
				return err
			}
			defer client.Store.(closer).Close()
			return client.Sync(rounds)
		},
	}
	cmd.Flags().IntVar(&rounds, "rounds", 2, "Number of sync rounds to run")
	return cmd
}

func splitCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "split <name>",
		Short: "Split a new secret across this vault's members",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := openClient()
			if err != nil {
				return err
			}
			defer client.Store.(closer).Close()
			plaintext, err := readSecretFromStdin()
			if err != nil {
				return err
			}
			claim, err := client.Split(args[0], plaintext)
			if err != nil {
				return err
			}
			if err := client.Sync(2); err != nil {
				return err
			}
			fmt.Printf("claim %s split across %d member(s)\n", claim.Id, len(claim.Receivers))
			return nil
		},
	}
	return cmd
}

func recoverCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "recover <name>",
		Short: "Ask the other members of this vault to help recover a secret",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := openClient()
			if err != nil {
				return err
			}
			defer client.Store.(closer).Close()
			claim, err := client.Recover(args[0])
			if err != nil {
				return err
			}
			if err := client.Sync(2); err != nil {
				return err
			}
			fmt.Printf("claim %s sent to %d responder(s); run accept-recover %s once they reply\n", claim.Id, len(claim.Receivers), claim.Id)
			return nil
		},
	}
	return cmd
}

func acceptRecoverCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "accept-recover <claim-id>",
		Short: "Collect recovery shares for a claim and reconstruct the plaintext",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := openClient()
			if err != nil {
				return err
			}
			defer client.Store.(closer).Close()
			if err := client.Sync(2); err != nil {
				return err
			}
			plaintext, err := client.AcceptRecover(model.ClaimId(args[0]))
			if err != nil {
				return err
			}
			fmt.Println(plaintext)
			return nil
		},
	}
	return cmd
}

func showSecretsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show-secrets",
		Short: "List the secrets registered in this vault",
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := openClient()
			if err != nil {
				return err
			}
			defer client.Store.(closer).Close()
			ids, err := client.ShowSecrets()
			if err != nil {
				return err
			}
			for _, id := range ids {
				fmt.Printf("%s\t%s\n", id.Id, id.Name)
			}
			return nil
		},
	}
}

func showClaimsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show-claims",
		Short: "List this vault's active split/recover claims",
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := openClient()
			if err != nil {
				return err
			}
			defer client.Store.(closer).Close()
			claims, err := client.ShowClaims()
			if err != nil {
				return err
			}
			for _, claim := range claims {
				fmt.Printf("%s\t%s\t%s\t%s\n", claim.Id, claim.DistributionType, claim.PassId.Name, claim.Sender)
			}
			return nil
		},
	}
}

func showEventsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show-events",
		Short: "Dump this device's local DeviceLog chain",
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := openClient()
			if err != nil {
				return err
			}
			defer client.Store.(closer).Close()
			events, err := client.ShowEvents()
			if err != nil {
				return err
			}
			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			for _, ev := range events {
				if err := enc.Encode(ev); err != nil {
					return err
				}
			}
			return nil
		},
	}
}

// closer lets main defer-close whichever concrete store.Store backs the
// client without main knowing its type.
type closer interface {
	Close() error
}

func openClient() (*app.MetaClient, error) {
	dbPath, err := resolveDBPath()
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(filepath.Dir(dbPath), 0o700); err != nil {
		return nil, fmt.Errorf("failed to create data dir: %w", err)
	}

	boltStore, err := store.OpenBoltStore(dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	masterKey, err := resolveMasterKey(filepath.Join(filepath.Dir(dbPath), "salt"))
	if err != nil {
		return nil, err
	}

	transport := sync.NewHTTPClient(resolveServerURL())
	var s store.Store = boltStore
	return app.NewMetaClient(s, masterKey, transport, 5*time.Second), nil
}

// resolveServerURL honors --server, then META_SERVER_URL, then the
// built-in production default (§6 "Environment variables").
func resolveServerURL() string {
	if serverFlag != "" {
		return serverFlag
	}
	if env := os.Getenv("META_SERVER_URL"); env != "" {
		return env
	}
	return defaultServerURL
}

func resolveDBPath() (string, error) {
	if dbPathFlag != "" {
		return dbPathFlag, nil
	}
	if env := os.Getenv("META_DB_PATH"); env != "" {
		return env, nil
	}

	var dataDir string
	switch runtime.GOOS {
	case "windows":
		dataDir = os.Getenv("APPDATA")
		if dataDir == "" {
			dataDir = filepath.Join(os.Getenv("USERPROFILE"), "AppData", "Roaming")
		}
	case "darwin":
		home, err := os.UserHomeDir()
		if err != nil {
			return "", err
		}
		dataDir = filepath.Join(home, "Library", "Application Support")
	default:
		dataDir = os.Getenv("XDG_DATA_HOME")
		if dataDir == "" {
			home, err := os.UserHomeDir()
			if err != nil {
				return "", err
			}
			dataDir = filepath.Join(home, ".local", "share")
		}
	}

	return filepath.Join(dataDir, "metasecret", "vault.db"), nil
}

// resolveMasterKey honors the spec's `--master-key`/META_MASTER_KEY path
// (a raw base64 X25519 secret key unwrapping persisted credentials) when
// supplied; otherwise it falls back to the supplemented master-password
// path (SPEC_FULL.md §5), deriving the key from METASECRET_PASSWORD (or
// a prompt) and a salt cached next to the database.
func resolveMasterKey(saltPath string) ([]byte, error) {
	raw := masterKeyFlag
	if raw == "" {
		raw = os.Getenv("META_MASTER_KEY")
	}
	if raw != "" {
		key, err := base64.StdEncoding.DecodeString(raw)
		if err != nil {
			return nil, fmt.Errorf("invalid --master-key/META_MASTER_KEY: %w", err)
		}
		return key, nil
	}
	return loadOrCreateMasterKey(saltPath)
}

// loadOrCreateMasterKey derives this device's at-rest sealing key from
// METASECRET_PASSWORD (or a prompt) and a salt cached next to the
// database — the salt must survive across runs or the same password
// would derive a different key each time.
func loadOrCreateMasterKey(saltPath string) ([]byte, error) {
	password := os.Getenv("METASECRET_PASSWORD")
	if password == "" {
		fmt.Print("master password: ")
		reader := bufio.NewReader(os.Stdin)
		line, err := reader.ReadString('\n')
		if err != nil {
			return nil, fmt.Errorf("failed to read password: %w", err)
		}
		password = trimNewline(line)
	}

	salt, err := os.ReadFile(saltPath)
	if os.IsNotExist(err) {
		salt, err = crypto.GenerateSalt()
		if err != nil {
			return nil, fmt.Errorf("failed to generate salt: %w", err)
		}
		if err := os.WriteFile(saltPath, salt, 0o600); err != nil {
			return nil, fmt.Errorf("failed to persist salt: %w", err)
		}
	} else if err != nil {
		return nil, fmt.Errorf("failed to read salt: %w", err)
	}

	return crypto.DeriveMasterKey(password, salt), nil
}

func readSecretFromStdin() (string, error) {
	fmt.Print("secret value: ")
	reader := bufio.NewReader(os.Stdin)
	line, err := reader.ReadString('\n')
	if err != nil {
		return "", fmt.Errorf("failed to read secret: %w", err)
	}
	return trimNewline(line), nil
}

func trimNewline(s string) string {
	for len(s) > 0 && (s[len(s)-1] == '\n' || s[len(s)-1] == '\r') {
		s = s[:len(s)-1]
	}
	return s
}
