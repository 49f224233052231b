package confirmcode

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base32"
	"fmt"
	"strconv"
	"time"

	"yamdb/internal/model"
)

// 确认码派生参数。
const (
	// DefaultBucket 时间桶宽度：同一个桶内派生出的码相同。
	DefaultBucket = 15 * time.Minute
	// SkewBuckets 校验时向前容忍的桶数（时钟偏移/临界续期）。
	SkewBuckets = 1
	// codeLen 码的字符数（base32，无填充）。
	codeLen = 12
)

var encoding = base32.StdEncoding.WithPadding(base32.NoPadding)

// Issuer 派生与校验邮箱确认码。
//
// 码不落库：它是对 {用户 ID, 安全状态快照, 时间桶} 做 HMAC-SHA256
// 得到的确定性结果，校验方只需用同一把密钥重新计算。
// 用户的邮箱、角色或 LastLogin 任何一项变化都会使已发出的码失效。
type Issuer struct {
	secret []byte
	bucket time.Duration
}

// New 创建 Issuer。
//
// 参数:
//
//	secret: 服务器端 HMAC 密钥
//	bucket: 时间桶宽度（<=0 时使用 DefaultBucket）
func New(secret string, bucket time.Duration) *Issuer {
	if bucket <= 0 {
		bucket = DefaultBucket
	}
	return &Issuer{
		secret: []byte(secret),
		bucket: bucket,
	}
}

// Issue 为用户派生当前时间桶的确认码。
func (i *Issuer) Issue(user *model.User, now time.Time) string {
	return i.derive(user, i.bucketIndex(now))
}

// Validate 校验确认码。
//
// 会重算当前桶以及紧邻的前一个桶的期望值，
// 使用恒定时间比较；不匹配或过期一律返回 false，不产生错误。
func (i *Issuer) Validate(user *model.User, code string, now time.Time) bool {
	if user == nil || code == "" {
		return false
	}
	current := i.bucketIndex(now)
	for delta := int64(0); delta <= SkewBuckets; delta++ {
		expected := i.derive(user, current-delta)
		if hmac.Equal([]byte(expected), []byte(code)) {
			return true
		}
	}
	return false
}

// derive 计算指定时间桶的码。
func (i *Issuer) derive(user *model.User, bucket int64) string {
	mac := hmac.New(sha256.New, i.secret)
	fmt.Fprintf(mac, "%d\x00%s\x00%s\x00%s\x00%s\x00%d",
		user.ID, user.Username, user.Email, user.Role, lastLoginStamp(user), bucket)
	sum := mac.Sum(nil)
	return encoding.EncodeToString(sum)[:codeLen]
}

func (i *Issuer) bucketIndex(now time.Time) int64 {
	return now.Unix() / int64(i.bucket.Seconds())
}

func lastLoginStamp(user *model.User) string {
	if user.LastLogin == nil {
		return ""
	}
	return strconv.FormatInt(user.LastLogin.UnixNano(), 10)
}
