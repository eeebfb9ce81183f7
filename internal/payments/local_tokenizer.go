package payments

import (
	"context"

	"github.com/oklog/ulid/v2"
)

// LocalTokenizer issues opaque tokens without contacting a PSP. It is wired when no
// Stripe key is configured so that local runs never retain raw card data either.
type LocalTokenizer struct {
	newID func() string
}

var _ CardTokenizer = (*LocalTokenizer)(nil)

// NewLocalTokenizer returns a tokenizer minting "tok_local_" prefixed ids.
func NewLocalTokenizer() *LocalTokenizer {
	return &LocalTokenizer{newID: func() string { return ulid.Make().String() }}
}

// Tokenize returns a fresh token with brand and last four derived from the number.
func (t *LocalTokenizer) Tokenize(ctx context.Context, card CardInput) (CardToken, error) {
	if err := ctx.Err(); err != nil {
		return CardToken{}, err
	}
	return CardToken{
		Token: "tok_local_" + t.newID(),
		Brand: DetectBrand(card.Number),
		Last4: Last4(card.Number),
	}, nil
}
