// Copyright 2016 SMFS Inc DBA GRIMM. All rights reserved.
// Use of this source code is governed by the MIT
// license that can be found in the LICENSE file.
package main

import (
	"context"
	"crypto/ed25519"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io/ioutil"
	"os"
	"path/filepath"
	"time"

	"github.com/lamassuiot/dcrl/pkg/dcrl"
	"github.com/lamassuiot/dcrl/pkg/node"
	identityfile "github.com/lamassuiot/dcrl/pkg/secrets/identity/file"
	"github.com/lamassuiot/dcrl/pkg/signing"
	"github.com/lamassuiot/dcrl/pkg/utils"
	"github.com/spf13/cobra"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:          "dcrlctl",
		Short:        "Manage DCRL certificates and talk to DCRL nodes",
		SilenceUsage: true,
	}
	root.AddCommand(newGenerateCmd(), newQueryCmd(), newRevokeCmd(), newStatusCmd())
	return root
}

type generateOptions struct {
	name        string
	validFrom   int64
	validLength int32
	usages      []string
	keypair     string
	issuer      string
}

func newGenerateCmd() *cobra.Command {
	var opts generateOptions
	cmd := &cobra.Command{
		Use:   "generate <name>",
		Short: "Create a certificate and key pair",
		Long: `Create <name>.cert, <name>.priv and <name>.pub.

The certificate is self-signed unless --issuer names the file prefix of an
issuing certificate and key.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			opts.name = args[0]
			cert, err := generate(cmd.Context(), opts)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s %s\n", opts.name, base64.RawURLEncoding.EncodeToString(node.CertificateHash(cert)))
			return nil
		},
	}
	cmd.Flags().Int64VarP(&opts.validFrom, "valid-from", "t", 0, "start of validity in unix seconds (default now)")
	cmd.Flags().Int32VarP(&opts.validLength, "valid-length", "l", 300, "validity in seconds")
	cmd.Flags().StringSliceVarP(&opts.usages, "usage", "u", nil, "usage to grant: authority or participation (repeatable)")
	cmd.Flags().StringVarP(&opts.keypair, "keypair", "p", "", "file prefix of an existing key pair to reuse")
	cmd.Flags().StringVarP(&opts.issuer, "issuer", "i", "", "file prefix of the issuing certificate and key")
	return cmd
}

func generate(ctx context.Context, opts generateOptions) (dcrl.Certificate, error) {
	var usages []dcrl.Usage
	for _, u := range opts.usages {
		usage, ok := dcrl.ParseUsage(u)
		if !ok {
			return dcrl.Certificate{}, fmt.Errorf("unknown usage %q", u)
		}
		usages = append(usages, usage)
	}
	if opts.validFrom == 0 {
		opts.validFrom = time.Now().Unix()
	}

	var signer signing.Ed25519Signer
	if opts.keypair != "" {
		key, err := readKey(opts.keypair + ".priv")
		if err != nil {
			return dcrl.Certificate{}, err
		}
		signer = signing.NewEd25519Signer(key)
	} else {
		var err error
		if signer, err = signing.GenerateEd25519Signer(); err != nil {
			return dcrl.Certificate{}, err
		}
	}

	template := dcrl.Certificate{
		Subject:          filepath.Base(opts.name),
		ValidFrom:        opts.validFrom,
		ValidLength:      opts.validLength,
		Usages:           usages,
		SigningPublicKey: signer.PublicKey(),
	}

	var cert dcrl.Certificate
	if opts.issuer != "" {
		issuerCert, err := readCertificate(opts.issuer + ".cert")
		if err != nil {
			return dcrl.Certificate{}, err
		}
		issuerKey, err := readKey(opts.issuer + ".priv")
		if err != nil {
			return dcrl.Certificate{}, err
		}
		cert, err = signing.IssueCertificate(ctx, template, &issuerCert, signing.NewEd25519Signer(issuerKey))
		if err != nil {
			return dcrl.Certificate{}, err
		}
	} else {
		var err error
		if cert, err = signing.IssueCertificate(ctx, template, nil, signer); err != nil {
			return dcrl.Certificate{}, err
		}
	}

	if err := identityfile.WriteCertificate(opts.name+".cert", cert); err != nil {
		return dcrl.Certificate{}, err
	}
	if err := identityfile.WriteKey(opts.name+".priv", signer.PrivateKey()); err != nil {
		return dcrl.Certificate{}, err
	}
	if err := identityfile.WritePublicKey(opts.name+".pub", signer.PublicKey()); err != nil {
		return dcrl.Certificate{}, err
	}
	return cert, nil
}

func newQueryCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "query <server> <cert-file>",
		Short: "Ask a node whether a certificate is revoked",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			cert, err := readCertificate(args[1])
			if err != nil {
				return err
			}
			c, err := node.NewHTTPClient(args[0])
			if err != nil {
				return err
			}
			status, err := c.Check(cmd.Context(), node.CertificateHash(cert))
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), status)
			return nil
		},
	}
}

func newRevokeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "revoke <server> <cert-file>",
		Short: "Ask an authority node to revoke a certificate",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			cert, err := readCertificate(args[1])
			if err != nil {
				return err
			}
			c, err := node.NewHTTPClient(args[0])
			if err != nil {
				return err
			}
			status, err := c.Revoke(cmd.Context(), cert)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), status)
			return nil
		},
	}
}

func newStatusCmd() *cobra.Command {
	var withChain, sync bool
	cmd := &cobra.Command{
		Use:   "status <server>",
		Short: "Show the chain tip of a node",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := node.NewHTTPClient(args[0])
			if err != nil {
				return err
			}
			if sync {
				if err := c.Sync(cmd.Context()); err != nil {
					return err
				}
			}
			info, err := c.Status(cmd.Context(), withChain)
			if err != nil {
				return err
			}
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(info)
		},
	}
	cmd.Flags().BoolVar(&withChain, "chain", false, "include every block")
	cmd.Flags().BoolVar(&sync, "sync", false, "ask the node to resynchronise first")
	return cmd
}

func readCertificate(path string) (dcrl.Certificate, error) {
	data, err := ioutil.ReadFile(path)
	if err != nil {
		return dcrl.Certificate{}, err
	}
	cert, err := utils.DecodeCertificate(data)
	if err != nil {
		return dcrl.Certificate{}, fmt.Errorf("%s: %w", path, err)
	}
	return cert, nil
}

func readKey(path string) (ed25519.PrivateKey, error) {
	data, err := ioutil.ReadFile(path)
	if err != nil {
		return nil, err
	}
	key, err := identityfile.DecodeKey(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return key, nil
}
