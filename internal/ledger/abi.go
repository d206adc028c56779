package ledger

import (
	"encoding/json"
	"fmt"
	"os"
)

// OrderChainABI is the contract interface used when an artifact carries no abi of its own.
const OrderChainABI = `[
  {"type":"function","name":"placeOrder","stateMutability":"nonpayable","outputs":[],"inputs":[
    {"name":"supplierID","type":"uint256"},
    {"name":"deliveryDate","type":"uint256"},
    {"name":"totalPrice","type":"uint256"},
    {"name":"orderDetails","type":"tuple[]","internalType":"struct OrderChain.OrderDetail[]","components":[
      {"name":"orderID","type":"uint256"},
      {"name":"productID","type":"uint256"},
      {"name":"productName","type":"string"},
      {"name":"productDescription","type":"string"},
      {"name":"quantity","type":"uint256"},
      {"name":"price","type":"uint256"}]}]},
  {"type":"function","name":"updateOrderStatus","stateMutability":"nonpayable","outputs":[],"inputs":[
    {"name":"orderID","type":"uint256"},
    {"name":"status","type":"uint8"}]},
  {"type":"function","name":"getOrder","stateMutability":"view","inputs":[{"name":"orderID","type":"uint256"}],"outputs":[
    {"name":"orderID","type":"uint256"},
    {"name":"userID","type":"address"},
    {"name":"supplierID","type":"uint256"},
    {"name":"deliveryDate","type":"uint256"},
    {"name":"totalPrice","type":"uint256"},
    {"name":"status","type":"uint8"}]},
  {"type":"function","name":"getOrderDetails","stateMutability":"view","inputs":[{"name":"orderID","type":"uint256"}],"outputs":[
    {"name":"","type":"tuple[]","internalType":"struct OrderChain.OrderDetail[]","components":[
      {"name":"orderID","type":"uint256"},
      {"name":"productID","type":"uint256"},
      {"name":"productName","type":"string"},
      {"name":"productDescription","type":"string"},
      {"name":"quantity","type":"uint256"},
      {"name":"price","type":"uint256"}]}]}
]`

// Deployment is one entry of the artifact's networks map.
type Deployment struct {
	Address         string `json:"address"`
	TransactionHash string `json:"transactionHash,omitempty"`
}

// Artifact is the subset of a truffle build artifact the client reads.
type Artifact struct {
	ContractName string                `json:"contractName"`
	ABI          json.RawMessage       `json:"abi"`
	Networks     map[string]Deployment `json:"networks"`
}

func ParseArtifact(b []byte) (Artifact, error) {
	var a Artifact
	if err := json.Unmarshal(b, &a); err != nil {
		return Artifact{}, fmt.Errorf("decode artifact: %w", err)
	}
	if len(a.ABI) == 0 || string(a.ABI) == "null" {
		a.ABI = json.RawMessage(OrderChainABI)
	}
	return a, nil
}

func LoadArtifact(path string) (Artifact, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return Artifact{}, fmt.Errorf("read artifact %s: %w", path, err)
	}
	return ParseArtifact(b)
}
