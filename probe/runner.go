package probe

import (
	"context"
	"fmt"

	"github.com/jessevdk/go-flags"
	"go.uber.org/zap"

	"github.com/memspace/iap"
)

// Run connects to a native store bridge, queries the given product
// identifiers and prints what the store returned. It exercises the full
// channel round trip and is meant for checking a bridge binary by hand.
func Run(args []string) error {
	options := &Options{}
	_, err := flags.ParseArgs(options, args)
	if err != nil {
		return err
	}
	logger := zap.NewNop()
	if options.Verbose {
		logger, err = zap.NewDevelopment()
		if err != nil {
			return err
		}
	}
	session, err := iap.New(&iap.Options{
		Transport: iap.TransportOptions{
			Type:    options.Transport,
			Command: options.Command,
			URL:     options.URL,
		},
	}, iap.WithLogger(logger))
	if err != nil {
		return err
	}
	ctx := context.Background()
	result, err := session.Queue().Products(ctx, options.Products)
	if err != nil {
		return err
	}
	for _, product := range result.Products {
		fmt.Printf("%v\t%v\t%v %v\n", product.ProductIdentifier, product.LocalizedTitle, product.Price, product.PriceLocale)
	}
	for _, identifier := range result.InvalidProductIdentifiers {
		fmt.Printf("%v\tinvalid\n", identifier)
	}
	return nil
}
