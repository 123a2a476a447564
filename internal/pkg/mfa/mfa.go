// Package mfa wraps TOTP enrollment/validation and generates the one-time and
// backup codes used for second-factor checks.
package mfa

import (
	"bytes"
	"crypto/rand"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"image/png"
	"math/big"
	"strings"
	"time"

	"github.com/pquerna/otp"
	pqtotp "github.com/pquerna/otp/totp"
)

const (
	BackupCodeCount = 10
	qrSize          = 200
)

type Authenticator struct {
	issuer string
	now    func() time.Time
}

func New(issuer string) *Authenticator {
	return &Authenticator{issuer: issuer, now: time.Now}
}

// Enrollment 开启 TOTP 时返回给用户的内容
type Enrollment struct {
	Secret string
	URI    string
	QRCode string // data:image/png;base64,...
}

func (a *Authenticator) validateOpts() pqtotp.ValidateOpts {
	return pqtotp.ValidateOpts{
		Period:    30,
		Skew:      1,
		Digits:    otp.DigitsSix,
		Algorithm: otp.AlgorithmSHA1,
	}
}

// Enroll 生成新的 secret、otpauth URI 和二维码
func (a *Authenticator) Enroll(accountName string) (*Enrollment, error) {
	key, err := pqtotp.Generate(pqtotp.GenerateOpts{
		Issuer:      a.issuer,
		AccountName: accountName,
		Period:      30,
		Digits:      otp.DigitsSix,
		Algorithm:   otp.AlgorithmSHA1,
	})
	if err != nil {
		return nil, fmt.Errorf("generate totp key: %w", err)
	}

	img, err := key.Image(qrSize, qrSize)
	if err != nil {
		return nil, fmt.Errorf("render qr code: %w", err)
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, fmt.Errorf("encode qr code: %w", err)
	}

	return &Enrollment{
		Secret: key.Secret(),
		URI:    key.URL(),
		QRCode: "data:image/png;base64," + base64.StdEncoding.EncodeToString(buf.Bytes()),
	}, nil
}

// Validate 允许前后各一个 30 秒窗口
func (a *Authenticator) Validate(secret, code string) bool {
	if secret == "" || code == "" {
		return false
	}
	ok, err := pqtotp.ValidateCustom(strings.TrimSpace(code), secret, a.now().UTC(), a.validateOpts())
	return err == nil && ok
}

// Code 当前时间的 TOTP 码
func (a *Authenticator) Code(secret string) (string, error) {
	return pqtotp.GenerateCodeCustom(secret, a.now().UTC(), a.validateOpts())
}

// GenerateBackupCodes 生成 n 个 8 位大写十六进制备用码
func GenerateBackupCodes(n int) ([]string, error) {
	codes := make([]string, 0, n)
	for i := 0; i < n; i++ {
		b := make([]byte, 4)
		if _, err := rand.Read(b); err != nil {
			return nil, err
		}
		codes = append(codes, strings.ToUpper(hex.EncodeToString(b)))
	}
	return codes, nil
}

var codeRange = big.NewInt(900000)

// GenerateNumericCode 生成 [100000, 999999] 内均匀分布的 6 位验证码
func GenerateNumericCode() (string, error) {
	n, err := rand.Int(rand.Reader, codeRange)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%d", n.Int64()+100000), nil
}
