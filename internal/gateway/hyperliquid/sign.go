package hyperliquid

import (
	"crypto/ecdsa"
	"encoding/binary"
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/common/math"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/signer/core/apitypes"
	"github.com/vmihailenco/msgpack/v5"
)

// 中文说明：
// L1 action 签名：action 经 msgpack 编码，拼上 8 字节大端 nonce 与金库标志位，
// keccak 得到 connectionId，再对 Agent{source, connectionId} 做 EIP-712 签名。
// source 主网为 "a"，测试网为 "b"。

type signer struct {
	key     *ecdsa.PrivateKey
	address common.Address
	source  string
}

func newSigner(privateKeyHex string, mainnet bool) (*signer, error) {
	keyHex := strings.TrimPrefix(strings.TrimSpace(privateKeyHex), "0x")
	key, err := crypto.HexToECDSA(keyHex)
	if err != nil {
		return nil, fmt.Errorf("parsing private key failed: %w", err)
	}
	source := "a"
	if !mainnet {
		source = "b"
	}
	return &signer{
		key:     key,
		address: crypto.PubkeyToAddress(key.PublicKey),
		source:  source,
	}, nil
}

// actionHash 计算 action 的 connectionId。
func actionHash(action any, nonce int64) (common.Hash, error) {
	data, err := msgpack.Marshal(action)
	if err != nil {
		return common.Hash{}, fmt.Errorf("encoding action failed: %w", err)
	}
	nonceBytes := make([]byte, 8)
	binary.BigEndian.PutUint64(nonceBytes, uint64(nonce))
	data = append(data, nonceBytes...)
	// 不使用金库账户
	data = append(data, 0x00)
	return crypto.Keccak256Hash(data), nil
}

func agentTypedData(source string, connectionID common.Hash) apitypes.TypedData {
	return apitypes.TypedData{
		Types: apitypes.Types{
			"EIP712Domain": {
				{Name: "name", Type: "string"},
				{Name: "version", Type: "string"},
				{Name: "chainId", Type: "uint256"},
				{Name: "verifyingContract", Type: "address"},
			},
			"Agent": {
				{Name: "source", Type: "string"},
				{Name: "connectionId", Type: "bytes32"},
			},
		},
		PrimaryType: "Agent",
		Domain: apitypes.TypedDataDomain{
			Name:              "Exchange",
			Version:           "1",
			ChainId:           math.NewHexOrDecimal256(1337),
			VerifyingContract: "0x0000000000000000000000000000000000000000",
		},
		Message: apitypes.TypedDataMessage{
			"source":       source,
			"connectionId": hexutil.Encode(connectionID[:]),
		},
	}
}

func (s *signer) signAction(action any, nonce int64) (signatureWire, error) {
	connectionID, err := actionHash(action, nonce)
	if err != nil {
		return signatureWire{}, err
	}
	digest, _, err := apitypes.TypedDataAndHash(agentTypedData(s.source, connectionID))
	if err != nil {
		return signatureWire{}, fmt.Errorf("hashing typed data failed: %w", err)
	}
	sig, err := crypto.Sign(digest, s.key)
	if err != nil {
		return signatureWire{}, fmt.Errorf("signing action failed: %w", err)
	}
	return signatureWire{
		R: hexutil.Encode(sig[:32]),
		S: hexutil.Encode(sig[32:64]),
		V: sig[64] + 27,
	}, nil
}
