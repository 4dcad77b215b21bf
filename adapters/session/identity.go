package session

import "fmt"

// Identity 是session中記住的參與者身份，僅作為回訪時的便利快取，
// 拍賣會文件本身才是參與者名單的正本
type Identity struct {
	Name  string
	Email string
}

func identityKey(auctionID, field string) string {
	return fmt.Sprintf("asta:%s:%s", auctionID, field)
}

// RememberParticipant 記住參與者在指定拍賣會使用的身份
func RememberParticipant(s ISession, auctionID string, identity Identity) {
	s.Set(identityKey(auctionID, "name"), identity.Name)
	s.Set(identityKey(auctionID, "email"), identity.Email)
}

// RecallParticipant 取回先前記住的身份，沒有記錄時 ok 為 false
func RecallParticipant(s ISession, auctionID string) (Identity, bool) {
	identity := Identity{
		Name:  s.Get(identityKey(auctionID, "name")),
		Email: s.Get(identityKey(auctionID, "email")),
	}
	return identity, identity.Name != ""
}

// ForgetParticipant 清除指定拍賣會的身份記錄
func ForgetParticipant(s ISession, auctionID string) {
	s.Delete(identityKey(auctionID, "name"))
	s.Delete(identityKey(auctionID, "email"))
}
