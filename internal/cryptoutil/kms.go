package cryptoutil

import (
	"context"
	"crypto"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rsa"
	"crypto/sha256"
	"crypto/sha512"
	"crypto/x509"
	"sync"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/kms"
	kmstypes "github.com/aws/aws-sdk-go-v2/service/kms/types"

	"github.com/keithlinneman/linnemanlabs-siteadmin/internal/xerrors"
)

// KMSKeyAPI is the subset of the KMS API needed to fetch a public key.
type KMSKeyAPI interface {
	GetPublicKey(ctx context.Context, params *kms.GetPublicKeyInput, optFns ...func(*kms.Options)) (*kms.GetPublicKeyOutput, error)
}

// KMSSignAPI is the subset of the KMS API needed to sign.
type KMSSignAPI interface {
	Sign(ctx context.Context, params *kms.SignInput, optFns ...func(*kms.Options)) (*kms.SignOutput, error)
}

// KMSSigner signs release manifests with an asymmetric KMS key. The digest
// is computed locally and sent as MessageType DIGEST, so message size is
// not limited by the KMS raw message cap.
type KMSSigner struct {
	client    KMSSignAPI
	keyARN    string
	Algorithm kmstypes.SigningAlgorithmSpec
}

// NewKMSSigner defaults to ECDSA_SHA_256.
func NewKMSSigner(client KMSSignAPI, keyARN string) *KMSSigner {
	return &KMSSigner{client: client, keyARN: keyARN, Algorithm: kmstypes.SigningAlgorithmSpecEcdsaSha256}
}

func (s *KMSSigner) KeyID() string { return s.keyARN }

func (s *KMSSigner) Sign(ctx context.Context, message []byte) ([]byte, error) {
	if s.client == nil {
		return nil, xerrors.New("kms client is not configured")
	}
	digest, err := signingDigest(s.Algorithm, message)
	if err != nil {
		return nil, err
	}
	out, err := s.client.Sign(ctx, &kms.SignInput{
		KeyId:            aws.String(s.keyARN),
		Message:          digest,
		MessageType:      kmstypes.MessageTypeDigest,
		SigningAlgorithm: s.Algorithm,
	})
	if err != nil {
		return nil, xerrors.Wrapf(err, "kms sign with %s", s.keyARN)
	}
	if len(out.Signature) == 0 {
		return nil, xerrors.Newf("kms returned an empty signature for %s", s.keyARN)
	}
	return out.Signature, nil
}

func signingDigest(alg kmstypes.SigningAlgorithmSpec, message []byte) ([]byte, error) {
	switch alg {
	case kmstypes.SigningAlgorithmSpecEcdsaSha256,
		kmstypes.SigningAlgorithmSpecRsassaPssSha256,
		kmstypes.SigningAlgorithmSpecRsassaPkcs1V15Sha256:
		d := sha256.Sum256(message)
		return d[:], nil
	case kmstypes.SigningAlgorithmSpecEcdsaSha384:
		d := sha512.Sum384(message)
		return d[:], nil
	default:
		return nil, xerrors.Newf("unsupported signing algorithm %s", alg)
	}
}

// KMSVerifier checks signatures locally against the KMS public key.
type KMSVerifier struct {
	client KMSKeyAPI
	keyARN string

	// AllowPKCS1v15 accepts RSA PKCS1v15 signatures when PSS fails.
	AllowPKCS1v15 bool

	mu     sync.RWMutex
	pubKey crypto.PublicKey
}

func NewKMSVerifier(client KMSKeyAPI, keyARN string) *KMSVerifier {
	return &KMSVerifier{client: client, keyARN: keyARN}
}

// PublicKey fetches the key once and caches it.
func (v *KMSVerifier) PublicKey(ctx context.Context) (crypto.PublicKey, error) {
	v.mu.RLock()
	if v.pubKey != nil {
		defer v.mu.RUnlock()
		return v.pubKey, nil
	}
	v.mu.RUnlock()

	v.mu.Lock()
	defer v.mu.Unlock()
	if v.pubKey != nil {
		return v.pubKey, nil
	}
	if v.client == nil {
		return nil, xerrors.New("kms client is not configured")
	}

	out, err := v.client.GetPublicKey(ctx, &kms.GetPublicKeyInput{
		KeyId: aws.String(v.keyARN),
	})
	if err != nil {
		return nil, xerrors.Wrap(err, "kms get public key")
	}
	if out.KeyUsage != kmstypes.KeyUsageTypeSignVerify {
		return nil, xerrors.Newf("kms key %s has KeyUsage=%s, expected SIGN_VERIFY", v.keyARN, out.KeyUsage)
	}
	pub, err := x509.ParsePKIXPublicKey(out.PublicKey)
	if err != nil {
		return nil, xerrors.Wrap(err, "parse kms public key DER")
	}
	v.pubKey = pub
	return v.pubKey, nil
}

// VerifySignature verifies signature over message. The hash follows the
// key: SHA-384 for P-384, SHA-256 for P-256 and RSA.
func (v *KMSVerifier) VerifySignature(ctx context.Context, message, signature []byte) error {
	pub, err := v.PublicKey(ctx)
	if err != nil {
		return err
	}
	switch key := pub.(type) {
	case *ecdsa.PublicKey:
		return verifyECDSA(key, message, signature)
	case *rsa.PublicKey:
		return verifyRSA(key, message, signature, v.AllowPKCS1v15)
	default:
		return xerrors.Newf("unsupported public key type: %T", pub)
	}
}

func verifyECDSA(key *ecdsa.PublicKey, message, signature []byte) error {
	var digest []byte
	switch key.Curve {
	case elliptic.P256():
		d := sha256.Sum256(message)
		digest = d[:]
	case elliptic.P384():
		d := sha512.Sum384(message)
		digest = d[:]
	default:
		return xerrors.Newf("unsupported ECDSA curve: %v", key.Curve.Params().Name)
	}
	if !ecdsa.VerifyASN1(key, digest, signature) {
		return xerrors.Newf("ECDSA signature verification failed on %s", key.Curve.Params().Name)
	}
	return nil
}

func verifyRSA(key *rsa.PublicKey, message, signature []byte, allowPKCS1v15 bool) error {
	digest := sha256.Sum256(message)
	pssErr := rsa.VerifyPSS(key, crypto.SHA256, digest[:], signature, nil)
	if pssErr == nil {
		return nil
	}
	if !allowPKCS1v15 {
		return xerrors.Wrap(pssErr, "RSA-PSS signature verification failed")
	}
	return rsa.VerifyPKCS1v15(key, crypto.SHA256, digest[:], signature)
}
