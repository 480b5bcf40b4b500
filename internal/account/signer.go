package account

import (
	"context"
	"crypto/sha256"
	"errors"
	"fmt"

	"github.com/klingon-exchange/walletstore/internal/chain"
	"github.com/klingon-exchange/walletstore/internal/keyring"
	"github.com/klingon-exchange/walletstore/internal/router"
)

// SignRoute is the router route served by the signing handler.
const SignRoute = "keyring"

// Router error codes of the signing module.
const (
	CodeUnknownMessage = 2
	CodeLocked         = 3
	CodeSignerMismatch = 4
	CodeSignFailed     = 5
)

// SignAminoMsg asks the signer to sign an amino sign doc.
type SignAminoMsg struct {
	ChainID string
	Signer  string
	Doc     SignDoc
}

func (m *SignAminoMsg) Route() string { return SignRoute }
func (m *SignAminoMsg) Type() string  { return "request-sign-amino" }

func (m *SignAminoMsg) ValidateBasic() error {
	switch {
	case m.ChainID == "":
		return errors.New("chain id is empty")
	case m.Signer == "":
		return errors.New("signer is empty")
	case m.Doc.ChainID != m.ChainID:
		return fmt.Errorf("sign doc chain %s does not match %s", m.Doc.ChainID, m.ChainID)
	case len(m.Doc.Msgs) == 0:
		return errors.New("sign doc has no messages")
	}
	return nil
}

// SignAminoResult is the answer to SignAminoMsg.
type SignAminoResult struct {
	Signed    SignDoc
	PubKey    []byte
	Signature []byte
}

// SignDigestMsg asks the signer to sign a precomputed 32-byte digest, as
// EVM transactions need.
type SignDigestMsg struct {
	ChainID string
	Signer  string
	Digest  []byte
}

func (m *SignDigestMsg) Route() string { return SignRoute }
func (m *SignDigestMsg) Type() string  { return "request-sign-digest" }

func (m *SignDigestMsg) ValidateBasic() error {
	switch {
	case m.ChainID == "":
		return errors.New("chain id is empty")
	case m.Signer == "":
		return errors.New("signer is empty")
	case len(m.Digest) != sha256.Size:
		return fmt.Errorf("digest must be %d bytes", sha256.Size)
	}
	return nil
}

// NewSignHandler serves SignRoute from kr. It refuses to sign for an
// address other than the key's own.
func NewSignHandler(kr keyring.Keyring, chains chain.Getter) router.Handler {
	return func(ctx context.Context, id string, msg router.Message) (interface{}, error) {
		switch m := msg.(type) {
		case *SignAminoMsg:
			info, key, err := signerKey(ctx, kr, chains, m.ChainID, m.Signer)
			if err != nil {
				return nil, err
			}
			signBytes, err := SortedJSON(m.Doc)
			if err != nil {
				return nil, router.NewError(SignRoute, CodeSignFailed, err.Error())
			}
			digest := sha256.Sum256(signBytes)
			if info.HasFeature(chain.FeatureEthKeySign) {
				copy(digest[:], keyring.Keccak256(signBytes))
			}
			sig, err := kr.Sign(ctx, info, digest[:])
			if err != nil {
				return nil, signError(err)
			}
			return &SignAminoResult{Signed: m.Doc, PubKey: key.PubKey, Signature: sig}, nil

		case *SignDigestMsg:
			info, _, err := signerKey(ctx, kr, chains, m.ChainID, m.Signer)
			if err != nil {
				return nil, err
			}
			sig, err := kr.Sign(ctx, info, m.Digest)
			if err != nil {
				return nil, signError(err)
			}
			return sig, nil
		}
		return nil, router.NewError(SignRoute, CodeUnknownMessage, "unknown message type "+msg.Type())
	}
}

func signerKey(ctx context.Context, kr keyring.Keyring, chains chain.Getter, chainID, signer string) (*chain.ChainInfo, keyring.Key, error) {
	info, err := chains.Get(chainID)
	if err != nil {
		return nil, keyring.Key{}, err
	}
	key, err := kr.GetKey(ctx, info)
	if err != nil {
		return nil, keyring.Key{}, signError(err)
	}
	bech32Addr, hexAddr, err := key.Addresses(info)
	if err != nil {
		return nil, keyring.Key{}, err
	}
	if signer != bech32Addr && signer != hexAddr {
		return nil, keyring.Key{}, router.NewError(SignRoute, CodeSignerMismatch, "signer is not the keyring account")
	}
	return info, key, nil
}

func signError(err error) error {
	if errors.Is(err, keyring.ErrLocked) || errors.Is(err, keyring.ErrEmpty) {
		return router.NewError(SignRoute, CodeLocked, err.Error())
	}
	return router.NewError(SignRoute, CodeSignFailed, err.Error())
}
