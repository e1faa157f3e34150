package attendance

import (
	"fmt"
	"net/url"

	"github.com/skip2/go-qrcode"
)

// ticketQRSize はチェックイン用QRコード画像の一辺のピクセル数。
const ticketQRSize = 256

// CheckInURL は(イベント, ユーザー)のチェックイン用URLを返す。
// 受付の管理者がこのURLへPOSTするとチケットの持ち主がチェックインする。
func CheckInURL(baseURL string, eventID int, userID string) string {
	q := url.Values{}
	q.Set("user", userID)
	return fmt.Sprintf("%s/api/admin/attendance/%d/checkin?%s", baseURL, eventID, q.Encode())
}

// TicketQRCode はチェックイン用URLを埋め込んだPNG形式のQRコードを生成する。
func TicketQRCode(baseURL string, eventID int, userID string) ([]byte, error) {
	png, err := qrcode.Encode(CheckInURL(baseURL, eventID, userID), qrcode.Medium, ticketQRSize)
	if err != nil {
		return nil, fmt.Errorf("failed to encode check-in QR code: %w", err)
	}
	return png, nil
}
