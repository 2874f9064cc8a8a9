/*
Copyright 2025.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

// The tls-relation-operator binary is a self-contained demonstration of the
// certificate relation: it wires a provider and a requirer over the in-memory
// store, issues against creation intents with a self-signed CA, and renews on
// expiry notifications.
package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-logr/logr"
	"github.com/go-logr/zapr"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/numtide/tls-relation-operator/pkg/pki"
	"github.com/numtide/tls-relation-operator/pkg/relation"
	"github.com/numtide/tls-relation-operator/pkg/tlscertificates"
)

const (
	providerApp  = "provider"
	requirerUnit = "requirer/0"
)

// Duration is a time.Duration that unmarshals from YAML strings like "90m".
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler.
func (d *Duration) UnmarshalYAML(node *yaml.Node) error {
	parsed, err := time.ParseDuration(node.Value)
	if err != nil {
		return err
	}
	*d = Duration(parsed)
	return nil
}

// Config is the optional YAML configuration file. Every field has a working
// default.
type Config struct {
	// Subject is the common name requested by the demo requirer.
	Subject string `yaml:"subject"`
	// SANs are added to the CSR as DNS names.
	SANs []string `yaml:"sans"`
	// Organization is set on the CSR subject when non-empty.
	Organization string `yaml:"organization"`
	// CertificateValidity is how long issued certificates live.
	CertificateValidity Duration `yaml:"certificateValidity"`
}

func defaultConfig() Config {
	return Config{
		Subject:             "demo.internal",
		CertificateValidity: Duration(time.Hour),
	}
}

func loadConfig(path string) (Config, error) {
	config := defaultConfig()
	if path == "" {
		return config, nil
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return config, err
	}
	if err := yaml.Unmarshal(raw, &config); err != nil {
		return config, err
	}
	return config, nil
}

func main() {
	var relationName string
	var expiryNotificationHours int
	var tickInterval time.Duration
	var configPath string
	var development bool

	flag.StringVar(&relationName, "relation", "certificates", "Name of the certificates relation.")
	flag.IntVar(&expiryNotificationHours, "expiry-notification-hours", 0, "Hours before expiry to start renewing. 0 derives a window from the certificate validity.")
	flag.DurationVar(&tickInterval, "tick-interval", 10*time.Second, "Interval between reconciliation ticks.")
	flag.StringVar(&configPath, "config", "", "Path to an optional YAML configuration file.")
	flag.BoolVar(&development, "dev", true, "Use development (console) log encoding.")
	flag.Parse()

	var zapLog *zap.Logger
	var err error
	if development {
		zapLog, err = zap.NewDevelopment()
	} else {
		zapLog, err = zap.NewProduction()
	}
	if err != nil {
		os.Exit(1)
	}
	log := zapr.NewLogger(zapLog)
	setupLog := log.WithName("setup")

	config, err := loadConfig(configPath)
	if err != nil {
		setupLog.Error(err, "unable to load configuration", "path", configPath)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, log, config, relationName, expiryNotificationHours, tickInterval); err != nil {
		setupLog.Error(err, "demo failed")
		os.Exit(1)
	}
}

func run(ctx context.Context, log logr.Logger, config Config, relationName string, expiryNotificationHours int, tickInterval time.Duration) error {
	setupLog := log.WithName("setup")

	// Both sides share one relation instance in the in-memory store.
	store := relation.NewMemoryStore()
	rel := store.AddRelation(relationName, 0)
	rel.AddUnit(requirerUnit)

	caKeyPEM, err := pki.GeneratePrivateKey(0)
	if err != nil {
		return err
	}
	caPEM, err := pki.GenerateCA(caKeyPEM, "demo-root-ca", pki.CAOptions{})
	if err != nil {
		return err
	}
	setupLog.Info("generated self-signed root CA")

	provider := tlscertificates.NewProvider(store, relationName, providerApp, tlscertificates.ProviderOptions{
		Logger: log,
	})
	// The built-in 7 day window would dwarf the demo's short-lived
	// certificates, so derive one from the validity unless overridden.
	expiryWindow := time.Duration(expiryNotificationHours) * time.Hour
	if expiryWindow <= 0 {
		expiryWindow = time.Duration(config.CertificateValidity) / 4
	}
	requirer := tlscertificates.NewRequirer(store, relationName, requirerUnit, providerApp, tlscertificates.RequirerOptions{
		ExpiryNotificationTime: expiryWindow,
		Logger:                 log,
	})

	unitKeyPEM, err := pki.GeneratePrivateKey(0)
	if err != nil {
		return err
	}
	newCSR := func() (string, error) {
		csr, err := pki.GenerateCSR(unitKeyPEM, config.Subject, pki.CSROptions{
			Organization: config.Organization,
			SANs:         config.SANs,
		})
		return string(csr), err
	}

	csr, err := newCSR()
	if err != nil {
		return err
	}
	if err := requirer.RequestCreation(csr); err != nil {
		return err
	}

	intentLog := log.WithName("intents")
	step := func() error {
		providerIntents, err := provider.HandleRelationChanged(0, requirerUnit)
		if err != nil {
			return err
		}
		for _, intent := range providerIntents {
			switch intent := intent.(type) {
			case tlscertificates.CertificateCreationRequested:
				certPEM, err := pki.GenerateCertificate(
					[]byte(intent.CertificateSigningRequest), caPEM, caKeyPEM,
					pki.CertificateOptions{Validity: time.Duration(config.CertificateValidity), AltNames: config.SANs},
				)
				if err != nil {
					return err
				}
				if err := provider.Issue(string(certPEM), intent.CertificateSigningRequest, string(caPEM), []string{string(caPEM)}, intent.RelationID); err != nil {
					return err
				}
				intentLog.Info("issued certificate", "relationID", intent.RelationID)
			case tlscertificates.CertificateRevocationRequested:
				intentLog.Info("certificate revoked")
			}
		}

		requirerIntents, err := requirer.HandleRelationChanged(0)
		if err != nil {
			return err
		}
		for _, intent := range requirerIntents {
			if available, ok := intent.(tlscertificates.CertificateAvailable); ok {
				notAfter, err := pki.NotAfter([]byte(available.Certificate))
				if err != nil {
					return err
				}
				intentLog.Info("certificate available", "notAfter", notAfter)
			}
		}

		tickIntents, err := requirer.HandleTick()
		if err != nil {
			return err
		}
		for _, intent := range tickIntents {
			switch intent := intent.(type) {
			case tlscertificates.CertificateExpiring:
				intentLog.Info("certificate expiring, renewing", "expiresAt", intent.ExpiresAt)
				renewed, err := newCSR()
				if err != nil {
					return err
				}
				if err := requirer.RequestRenewal(csr, renewed); err != nil {
					return err
				}
				csr = renewed
			case tlscertificates.CertificateExpired:
				intentLog.Info("certificate expired, re-requesting")
				renewed, err := newCSR()
				if err != nil {
					return err
				}
				if err := requirer.RequestCreation(renewed); err != nil {
					return err
				}
				csr = renewed
			}
		}
		return nil
	}

	// First reconciliation before the ticker starts.
	if err := step(); err != nil {
		return err
	}

	setupLog.Info("reconciling", "interval", tickInterval)
	ticker := time.NewTicker(tickInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			setupLog.Info("shutting down")
			return nil
		case <-ticker.C:
			if err := step(); err != nil {
				return err
			}
		}
	}
}
