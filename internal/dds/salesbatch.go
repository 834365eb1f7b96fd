package dds

import (
	"context"

	"github.com/ignite/campaign-sync-engine/internal/pkg/apperror"
)

// SalesBatchProducer replaces the source's generator/lazy-sequence-over-
// pages pattern (spec §9 REDESIGN FLAGS) with a restartable producer that
// fetches pages in a goroutine and yields them to a bounded channel;
// consumers range over Batches() until it closes. Stopping early (letting
// the consumer's range loop exit without draining) leaks nothing because
// the producer goroutine selects on ctx.Done() before every send.
type SalesBatchProducer struct {
	client    *Client
	productID string
	pageSize  int
}

// NewSalesBatchProducer builds a producer over list_sales pages for the
// given product filter (empty string means all products).
func NewSalesBatchProducer(client *Client, productID string, pageSize int) *SalesBatchProducer {
	if pageSize <= 0 {
		pageSize = 100
	}
	return &SalesBatchProducer{client: client, productID: productID, pageSize: pageSize}
}

// Batches starts fetching pages in a background goroutine and returns a
// channel of SalesPage batches, bounded to `buffer` in-flight pages to
// cap memory (spec §5's N=4 recommended in-flight batches). The channel
// is closed when pagination is exhausted, ctx is cancelled, or a fetch
// error occurs; the final error (if any) is delivered via the returned
// error channel after the batch channel closes.
func (p *SalesBatchProducer) Batches(ctx context.Context, buffer int) (<-chan SalesPage, <-chan error) {
	if buffer <= 0 {
		buffer = 4
	}
	batches := make(chan SalesPage, buffer)
	errs := make(chan error, 1)

	go func() {
		defer close(batches)
		defer close(errs)

		page := 0
		for {
			if ctx.Err() != nil {
				errs <- apperror.Wrap(apperror.Cancelled, ctx.Err(), "sales batch producer stopped")
				return
			}

			sp, err := p.client.ListSales(ctx, p.productID, page, p.pageSize)
			if err != nil {
				errs <- err
				return
			}

			select {
			case batches <- sp:
			case <-ctx.Done():
				errs <- apperror.Wrap(apperror.Cancelled, ctx.Err(), "sales batch producer stopped")
				return
			}

			if !sp.HasMore {
				return
			}
			page++
		}
	}()

	return batches, errs
}
