package identity

import (
	"encoding/base64"
	"errors"
	"fmt"

	"google.golang.org/protobuf/encoding/protowire"
)

// DroidGuardResponse is the fixed value the remote protocol expects in the
// outer token record. It is reproduced as-is.
const DroidGuardResponse int64 = 3959931537119515576

// Field numbers of the token schema:
//
//	message AppInfo      { string package_name = 1; string signature = 3; }
//	message SpatulaInner { AppInfo app_info = 1; int64 droidguard_response = 3; }
const (
	appInfoPackageField   protowire.Number = 1
	appInfoSignatureField protowire.Number = 3
	outerAppInfoField     protowire.Number = 1
	outerDroidGuardField  protowire.Number = 3
)

var ErrMalformedToken = errors.New("malformed token")

// EncodeToken returns the base64 attestation token for a package and raw
// signature bytes. The output is byte-for-byte deterministic.
func EncodeToken(packageName string, signature []byte) string {
	return base64.StdEncoding.EncodeToString(marshalToken(packageName, signature))
}

func marshalToken(packageName string, signature []byte) []byte {
	var appInfo []byte
	if packageName != "" {
		appInfo = protowire.AppendTag(appInfo, appInfoPackageField, protowire.BytesType)
		appInfo = protowire.AppendString(appInfo, packageName)
	}
	if len(signature) > 0 {
		appInfo = protowire.AppendTag(appInfo, appInfoSignatureField, protowire.BytesType)
		appInfo = protowire.AppendString(appInfo, base64.StdEncoding.EncodeToString(signature))
	}

	var b []byte
	b = protowire.AppendTag(b, outerAppInfoField, protowire.BytesType)
	b = protowire.AppendBytes(b, appInfo)
	b = protowire.AppendTag(b, outerDroidGuardField, protowire.VarintType)
	b = protowire.AppendVarint(b, uint64(DroidGuardResponse))
	return b
}

// DecodeToken reverses EncodeToken. Unknown fields are skipped.
func DecodeToken(token string) (packageName string, signature []byte, err error) {
	raw, err := base64.StdEncoding.DecodeString(token)
	if err != nil {
		return "", nil, fmt.Errorf("%w: %v", ErrMalformedToken, err)
	}

	var appInfo []byte
	err = walkFields(raw, func(num protowire.Number, typ protowire.Type, b []byte) (int, error) {
		if num == outerAppInfoField && typ == protowire.BytesType {
			v, n := protowire.ConsumeBytes(b)
			if n < 0 {
				return n, protowire.ParseError(n)
			}
			appInfo = v
			return n, nil
		}
		n := protowire.ConsumeFieldValue(num, typ, b)
		if n < 0 {
			return n, protowire.ParseError(n)
		}
		return n, nil
	})
	if err != nil {
		return "", nil, err
	}
	if appInfo == nil {
		return "", nil, fmt.Errorf("%w: missing app info", ErrMalformedToken)
	}

	var encodedSig string
	err = walkFields(appInfo, func(num protowire.Number, typ protowire.Type, b []byte) (int, error) {
		if typ == protowire.BytesType && (num == appInfoPackageField || num == appInfoSignatureField) {
			v, n := protowire.ConsumeString(b)
			if n < 0 {
				return n, protowire.ParseError(n)
			}
			if num == appInfoPackageField {
				packageName = v
			} else {
				encodedSig = v
			}
			return n, nil
		}
		n := protowire.ConsumeFieldValue(num, typ, b)
		if n < 0 {
			return n, protowire.ParseError(n)
		}
		return n, nil
	})
	if err != nil {
		return "", nil, err
	}

	signature, err = base64.StdEncoding.DecodeString(encodedSig)
	if err != nil {
		return "", nil, fmt.Errorf("%w: signature: %v", ErrMalformedToken, err)
	}
	return packageName, signature, nil
}

func walkFields(b []byte, visit func(protowire.Number, protowire.Type, []byte) (int, error)) error {
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return fmt.Errorf("%w: %v", ErrMalformedToken, protowire.ParseError(n))
		}
		b = b[n:]
		m, err := visit(num, typ, b)
		if err != nil {
			return fmt.Errorf("%w: %v", ErrMalformedToken, err)
		}
		b = b[m:]
	}
	return nil
}
