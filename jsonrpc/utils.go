package jsonrpc

import (
	"fmt"
	"net"
	"net/http"
	"strings"

	"github.com/mezonai/devnode/logx"
)

// JSON-RPC Method name constants
const (
	// Checkpoint methods
	MethodEvmSnapshot = "evm_snapshot"
	MethodEvmRevert   = "evm_revert"

	// Block production and time travel
	MethodEvmMine                      = "evm_mine"
	MethodEvmIncreaseTime              = "evm_increaseTime"
	MethodEvmSetNextBlockTimestamp     = "evm_setNextBlockTimestamp"
	MethodEvmSetNextBlockBaseFeePerGas = "evm_setNextBlockBaseFeePerGas"
	MethodEthBlockNumber               = "eth_blockNumber"

	// Fee calculator
	MethodDevWeightToFee = "dev_weightToFee"
	MethodDevFeeToWeight = "dev_feeToWeight"

	// Health methods
	MethodHealthCheck = "health.check"
)

func extractClientIPFromRequest(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		logx.Debug("JSONRPC", fmt.Sprintf("Forwarded request | x_forwarded_for=%s", xff))
		parts := strings.Split(xff, ",")
		if len(parts) > 0 {
			ip := strings.TrimSpace(parts[0])
			if net.ParseIP(ip) != nil {
				return ip
			}
		}
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err == nil && net.ParseIP(host) != nil {
		return host
	}
	return "unknown"
}
