package session

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/danmuck/amulectl/internal/observability"
	"github.com/danmuck/amulectl/internal/protocol/frame"
	"github.com/danmuck/amulectl/internal/protocol/schema"
	"github.com/danmuck/amulectl/internal/protocol/tlv"
)

// AuthState tracks one handshake: Unauthenticated -> SaltReceived -> Authenticated|Failed.
type AuthState int

const (
	AuthUnauthenticated AuthState = iota
	AuthSaltReceived
	AuthAuthenticated
	AuthFailed
)

func (s AuthState) String() string {
	switch s {
	case AuthUnauthenticated:
		return "unauthenticated"
	case AuthSaltReceived:
		return "salt_received"
	case AuthAuthenticated:
		return "authenticated"
	case AuthFailed:
		return "failed"
	default:
		return "unknown(" + strconv.Itoa(int(s)) + ")"
	}
}

type exchangeFunc func(ctx context.Context, req frame.Packet) (frame.Packet, error)

// PasswordHash computes the EC challenge response:
// md5(hex(md5(password)) + hex(md5(saltHex))), lowercase hex throughout.
func PasswordHash(password []byte, saltHex string) tlv.Hash16 {
	pw := md5.Sum(password)
	salt := md5.Sum([]byte(saltHex))
	return md5.Sum([]byte(hex.EncodeToString(pw[:]) + hex.EncodeToString(salt[:])))
}

// SaltHex renders a PASSWD_SALT tag the way the daemon hashes it:
// integers as uppercase hex without padding, byte values as uppercase hex of the bytes.
func SaltHex(tag tlv.Tag) (string, error) {
	switch v := tag.Value.(type) {
	case tlv.Hash16:
		return strings.ToUpper(hex.EncodeToString(v[:])), nil
	case []byte:
		if len(v) == 0 {
			return "", fmt.Errorf("%w: empty salt", tlv.ErrMissingValue)
		}
		return strings.ToUpper(hex.EncodeToString(v)), nil
	}
	n, ok := tag.Uint()
	if !ok {
		return "", fmt.Errorf("%w: salt type %s", tlv.ErrValueType, tag.Type)
	}
	return strings.ToUpper(strconv.FormatUint(n, 16)), nil
}

func (s *Session) handshake(ctx context.Context, exchange exchangeFunc) (err error) {
	start := time.Now()
	state := AuthUnauthenticated
	defer func() {
		observability.RecordAuth(err)
		if err != nil {
			s.log.Warn().Err(err).Str("state", state.String()).Msg("authentication failed")
			return
		}
		s.log.Info().Dur("elapsed", time.Since(start)).Msg("authenticated")
	}()

	resp, err := exchange(ctx, frame.Packet{
		Opcode: schema.OpAuthReq,
		Tags: []tlv.Tag{
			tlv.New(schema.TagClientName, tlv.TypeString, s.cfg.ClientName),
			tlv.New(schema.TagClientVersion, tlv.TypeString, s.cfg.ClientVersion),
			tlv.New(schema.TagProtocolVersion, tlv.TypeUint16, schema.ProtocolVersion),
		},
	})
	if err != nil {
		return err
	}
	if resp.Opcode != schema.OpAuthSalt {
		state = AuthFailed
		return rejection(AuthUnauthenticated, resp, nil)
	}
	if err := schema.Validate(resp.Opcode, resp.Tags); err != nil {
		state = AuthFailed
		return rejection(AuthUnauthenticated, resp, err)
	}
	saltTag, _ := tlv.Find(resp.Tags, schema.TagPasswdSalt)
	salt, err := SaltHex(saltTag)
	if err != nil {
		state = AuthFailed
		return rejection(AuthUnauthenticated, resp, err)
	}
	state = AuthSaltReceived
	s.log.Debug().Str("salt", salt).Msg("salt received")

	hash, err := s.passwordHash(salt)
	if err != nil {
		state = AuthFailed
		return err
	}
	resp, err = exchange(ctx, frame.Packet{
		Opcode: schema.OpAuthPasswd,
		Tags:   []tlv.Tag{tlv.New(schema.TagPasswdHash, tlv.TypeHash16, hash)},
	})
	if err != nil {
		return err
	}
	if resp.Opcode != schema.OpAuthOK {
		state = AuthFailed
		return rejection(AuthSaltReceived, resp, nil)
	}
	state = AuthAuthenticated
	return nil
}

func (s *Session) passwordHash(salt string) (tlv.Hash16, error) {
	if s.password == nil {
		return PasswordHash(nil, salt), nil
	}
	buf, err := s.password.Open()
	if err != nil {
		return tlv.Hash16{}, fmt.Errorf("session: open password enclave: %w", err)
	}
	defer buf.Destroy()
	return PasswordHash(buf.Bytes(), salt), nil
}

func rejection(step AuthState, resp frame.Packet, cause error) *AuthError {
	authErr := &AuthError{Step: step, Opcode: resp.Opcode, Err: cause}
	if reason, ok := tlv.Find(resp.Tags, schema.TagString); ok {
		authErr.Reason = reason.Text()
	}
	return authErr
}
