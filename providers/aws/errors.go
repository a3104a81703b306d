package aws

import (
	"errors"
	"fmt"
	"strings"

	"github.com/aws/smithy-go"

	"github.com/picklr-io/vpnpilot/internal/vpn"
)

// API error codes the Client VPN adapter treats specially.
const (
	codeEndpointNotFound    = "InvalidClientVpnEndpointId.NotFound"
	codeAssociationNotFound = "InvalidClientVpnAssociationId.NotFound"
	codeActiveAssocNotFound = "InvalidClientVpnActiveAssociationNotFound"
	codeSubnetNotFound      = "InvalidSubnetID.NotFound"
	codeDuplicateAssoc      = "InvalidClientVpnDuplicateAssociationException"
	codeIncorrectState      = "IncorrectState"
	codeInvalidParameter    = "InvalidParameterValue"
)

func apiCode(err error) string {
	var ae smithy.APIError
	if errors.As(err, &ae) {
		return ae.ErrorCode()
	}
	return ""
}

// classify tags an SDK error with the matching taxonomy sentinel.
func classify(op string, err error) error {
	if err == nil {
		return nil
	}
	code := apiCode(err)
	switch {
	case code == codeEndpointNotFound, code == codeSubnetNotFound, code == codeInvalidParameter:
		return fmt.Errorf("%w: %s: %w", vpn.ErrConfig, op, err)
	case code == codeIncorrectState, code == codeDuplicateAssoc:
		return fmt.Errorf("%w: %s: %w", vpn.ErrTransientState, op, err)
	case code == "":
		return fmt.Errorf("%s: %w", op, err)
	case strings.Contains(code, "Throttl"), code == "RequestLimitExceeded":
		return fmt.Errorf("%s throttled: %w", op, err)
	default:
		return fmt.Errorf("%s failed (%s): %w", op, code, err)
	}
}
