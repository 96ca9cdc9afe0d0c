package domain

import "math/big"

const ZeroAddress = "0x0000000000000000000000000000000000000000"

type NFTToken struct {
	ID       string   `json:"id"`
	TokenID  *big.Int `json:"token_id"`
	Owner    string   `json:"owner"`
	MintedAt int64    `json:"minted_at"`
	MintedBy string   `json:"minted_by"`
}

func (n *NFTToken) EntityKind() Kind { return KindNFTToken }
func (n *NFTToken) EntityID() string { return n.ID }

type NFTHolder struct {
	ID            string `json:"id"`
	TokenCount    int64  `json:"token_count"`
	FirstOwnedAt  int64  `json:"first_owned_at"`
	LastUpdatedAt int64  `json:"last_updated_at"`
}

func (n *NFTHolder) EntityKind() Kind { return KindNFTHolder }
func (n *NFTHolder) EntityID() string { return n.ID }

type NFTTransfer struct {
	ID          string `json:"id"`
	Token       string `json:"token"`
	From        string `json:"from"`
	To          string `json:"to"`
	Timestamp   int64  `json:"timestamp"`
	Transaction string `json:"transaction"`
	BlockNumber uint64 `json:"block_number"`
}

func (n *NFTTransfer) EntityKind() Kind { return KindNFTTransfer }
func (n *NFTTransfer) EntityID() string { return n.ID }

// CreatedToken is a token deployed through the launchpad
type CreatedToken struct {
	ID            string   `json:"id"`
	Name          string   `json:"name"`
	Symbol        string   `json:"symbol"`
	InitialSupply *big.Int `json:"initial_supply"`
	Decimals      int64    `json:"decimals"`
	Owner         string   `json:"owner"`
	CreatedAt     int64    `json:"created_at"`
}

func (c *CreatedToken) EntityKind() Kind { return KindCreatedToken }
func (c *CreatedToken) EntityID() string { return c.ID }
