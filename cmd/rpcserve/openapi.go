package main

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	jsoniter "github.com/json-iterator/go"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/mnehpets/rpcserve/openapi"
)

func newOpenAPICmd(v *viper.Viper) *cobra.Command {
	var convention, format string
	cmd := &cobra.Command{
		Use:   "openapi",
		Short: "Print the OpenAPI document of the registered methods",
		Long: `Print the OpenAPI document of the registered methods.

One document exists per naming convention in use; --convention picks one
when there are several.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(v)
			if err != nil {
				return err
			}
			rpc := newRPCEndpoint(cfg, zerolog.Nop())
			docs := openapi.Documents(rpc.Methods(), docsOptions(cfg))

			doc, err := pickDocument(docs, convention)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			switch format {
			case "json":
				b, err := jsoniter.ConfigCompatibleWithStandardLibrary.MarshalIndent(doc, "", "  ")
				if err != nil {
					return err
				}
				_, err = fmt.Fprintln(out, string(b))
				return err
			case "yaml":
				enc := yaml.NewEncoder(out)
				enc.SetIndent(2)
				if err := enc.Encode(doc); err != nil {
					return err
				}
				return enc.Close()
			}
			return fmt.Errorf("unknown format %q (json or yaml)", format)
		},
	}
	cmd.Flags().StringVar(&convention, "convention", "", "naming convention of the document")
	cmd.Flags().StringVar(&format, "format", "json", "output format: json or yaml")
	return cmd
}

func pickDocument(docs map[string]*openapi.Document, convention string) (*openapi.Document, error) {
	names := make([]string, 0, len(docs))
	for name := range docs {
		names = append(names, name)
	}
	sort.Strings(names)

	switch {
	case convention != "":
		if doc, ok := docs[convention]; ok {
			return doc, nil
		}
		return nil, fmt.Errorf("no document for convention %q (have: %s)", convention, strings.Join(names, ", "))
	case len(docs) == 1:
		return docs[names[0]], nil
	case len(docs) == 0:
		return nil, errors.New("no methods registered")
	}
	return nil, fmt.Errorf("several documents, pick one with --convention: %s", strings.Join(names, ", "))
}
