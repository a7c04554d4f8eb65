package audio

import "encoding/base64"

// PCM16ToFloat32 converts little-endian int16 PCM to normalized float samples
// in [-1, 1]. Negative and positive excursions are scaled by their own
// magnitude (32768 and 32767 respectively) so that both int16 extremes map
// exactly onto ±1.0 instead of clipping asymmetrically.
//
// A trailing odd byte is ignored.
func PCM16ToFloat32(pcm []byte) []float32 {
	out := make([]float32, 0, len(pcm)/2)
	for i := 0; i+1 < len(pcm); i += 2 {
		s := int16(pcm[i]) | int16(pcm[i+1])<<8
		if s < 0 {
			out = append(out, float32(s)/32768)
		} else {
			out = append(out, float32(s)/32767)
		}
	}
	return out
}

// Float32ToPCM16 converts normalized float samples back to little-endian int16
// PCM using the same per-sign scaling as [PCM16ToFloat32]. Inputs outside
// [-1, 1] are clamped.
func Float32ToPCM16(samples []float32) []byte {
	out := make([]byte, len(samples)*2)
	for i, f := range samples {
		if f > 1 {
			f = 1
		} else if f < -1 {
			f = -1
		}
		var s int16
		if f < 0 {
			s = int16(f * 32768)
		} else {
			s = int16(f * 32767)
		}
		out[i*2] = byte(s)
		out[i*2+1] = byte(s >> 8)
	}
	return out
}

// EncodeTransport encodes raw audio bytes into the base64 form carried inside
// JSON frames on both WebSocket legs.
func EncodeTransport(raw []byte) string {
	return base64.StdEncoding.EncodeToString(raw)
}

// DecodeTransport decodes a base64 transport payload back into raw bytes.
func DecodeTransport(encoded string) ([]byte, error) {
	return base64.StdEncoding.DecodeString(encoded)
}
