// Package turn runs the relay the two parties of an accepted call use for media.
package turn

import (
	"crypto/rand"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/pion/turn/v3"
)

type Options struct {
	Port  int
	Realm string
	// RelayIP overrides public IP detection.
	RelayIP string
	KeysDir string
}

type TURNServer struct {
	server *turn.Server
	port   int
	creds  Credentials
	logger *slog.Logger
}

type Credentials struct {
	Username string
	Password string
}

// ICEServer is one entry of an RTCPeerConnection iceServers list.
type ICEServer struct {
	URLs       string `json:"urls"`
	Username   string `json:"username,omitempty"`
	Credential string `json:"credential,omitempty"`
}

func Initialize(opts Options, logger *slog.Logger) (*TURNServer, error) {
	if logger == nil {
		logger = slog.Default()
	}

	udpListener, err := net.ListenPacket("udp4", fmt.Sprintf("0.0.0.0:%d", opts.Port))
	if err != nil {
		return nil, fmt.Errorf("failed to create UDP listener: %w", err)
	}

	creds := loadOrGenerateCredentials(opts.KeysDir, logger)

	relayIP := net.ParseIP(opts.RelayIP)
	if relayIP == nil {
		relayIP = getPublicIP(logger)
	}
	if relayIP == nil {
		relayIP = getLocalIP(logger)
	}
	logger.Info("TURN relay address", "ip", relayIP.String())

	s, err := turn.NewServer(turn.ServerConfig{
		Realm:       opts.Realm,
		AuthHandler: simpleAuthHandler(creds.Username, creds.Password),
		PacketConnConfigs: []turn.PacketConnConfig{
			{
				PacketConn: udpListener,
				RelayAddressGenerator: &turn.RelayAddressGeneratorStatic{
					RelayAddress: relayIP,
					Address:      "0.0.0.0",
				},
			},
		},
	})
	if err != nil {
		_ = udpListener.Close()
		return nil, fmt.Errorf("failed to create TURN server: %w", err)
	}

	port := opts.Port
	if addr, ok := udpListener.LocalAddr().(*net.UDPAddr); ok {
		port = addr.Port
	}
	logger.Info("TURN server initialized", "port", port, "realm", opts.Realm)

	return &TURNServer{server: s, port: port, creds: creds, logger: logger}, nil
}

func (ts *TURNServer) GetCredentials() Credentials {
	return ts.creds
}

// ICEServers returns the STUN and TURN entries for clients reaching us at host.
// The relay is UDP only, so the URLs use turn: and not turns:.
func (ts *TURNServer) ICEServers(host string) []ICEServer {
	return iceServers(host, ts.port, ts.creds)
}

func iceServers(host string, port int, creds Credentials) []ICEServer {
	if h, _, err := net.SplitHostPort(host); err == nil {
		host = h
	}
	return []ICEServer{
		{URLs: fmt.Sprintf("stun:%s:%d", host, port)},
		{
			URLs:       fmt.Sprintf("turn:%s:%d", host, port),
			Username:   creds.Username,
			Credential: creds.Password,
		},
	}
}

func (ts *TURNServer) Close() error {
	if ts.server != nil {
		return ts.server.Close()
	}
	return nil
}

func loadOrGenerateCredentials(keysDir string, logger *slog.Logger) Credentials {
	if keysDir == "" {
		keysDir = "keys"
	}
	usernameFile := filepath.Join(keysDir, "turn-username.key")
	passwordFile := filepath.Join(keysDir, "turn-password.key")

	if usernameData, err := os.ReadFile(usernameFile); err == nil {
		if passwordData, err := os.ReadFile(passwordFile); err == nil {
			return Credentials{
				Username: strings.TrimSpace(string(usernameData)),
				Password: strings.TrimSpace(string(passwordData)),
			}
		}
	}

	creds := Credentials{Username: "callsupport", Password: generatePassword()}
	if err := os.MkdirAll(keysDir, 0700); err == nil {
		_ = os.WriteFile(usernameFile, []byte(creds.Username), 0600)
		_ = os.WriteFile(passwordFile, []byte(creds.Password), 0600)
		logger.Info("TURN credentials saved", "dir", keysDir)
	}
	return creds
}

func simpleAuthHandler(expectedUsername, expectedPassword string) turn.AuthHandler {
	return func(username string, realm string, srcAddr net.Addr) ([]byte, bool) {
		if username == expectedUsername {
			return turn.GenerateAuthKey(username, realm, expectedPassword), true
		}
		return nil, false
	}
}

func generatePassword() string {
	b := make([]byte, 16)
	rand.Read(b)
	return fmt.Sprintf("%x", b)
}

func getPublicIP(logger *slog.Logger) net.IP {
	client := &http.Client{Timeout: 5 * time.Second}

	resp, err := client.Get("https://api.ipify.org")
	if err != nil {
		logger.Warn("failed to get public IP", "error", err)
		return nil
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		logger.Warn("public IP lookup failed", "status", resp.StatusCode)
		return nil
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 64))
	if err != nil {
		return nil
	}
	return net.ParseIP(strings.TrimSpace(string(body)))
}

func getLocalIP(logger *slog.Logger) net.IP {
	conn, err := net.Dial("udp", "8.8.8.8:80")
	if err != nil {
		logger.Warn("failed to determine local IP", "error", err)
		return net.ParseIP("127.0.0.1")
	}
	defer conn.Close()
	return conn.LocalAddr().(*net.UDPAddr).IP
}
