package pangaea

import "context"

// Client fetches both halves of a dataset and renews the metadata session on
// request.
type Client struct {
	Data  *DataClient
	Vista *VistaClient
}

func (c *Client) FetchData(ctx context.Context, id string) ([]byte, error) {
	return c.Data.FetchData(ctx, id)
}

func (c *Client) FetchMetadata(ctx context.Context, id string) ([]byte, error) {
	return c.Vista.FetchMetadata(ctx, id)
}

func (c *Client) RenewSession(ctx context.Context) error {
	return c.Vista.RenewSession(ctx)
}
