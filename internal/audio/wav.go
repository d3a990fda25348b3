// Package audio wraps raw dialogue-service audio in a playable container.
package audio

import (
	"encoding/binary"
	"time"
)

// DialogueSampleRate is the fixed output rate requested from the
// dialogue service (pcm_s16le, mono).
const DialogueSampleRate = 24000

// PCMToWAV wraps raw little-endian signed 16-bit mono PCM in a WAV
// container at the given sample rate.
func PCMToWAV(pcm []byte, sampleRate int) []byte {
	totalLen := 44 + len(pcm)

	buf := make([]byte, 44, totalLen)
	copy(buf[0:4], "RIFF")
	binary.LittleEndian.PutUint32(buf[4:8], uint32(totalLen-8))
	copy(buf[8:12], "WAVE")
	copy(buf[12:16], "fmt ")
	binary.LittleEndian.PutUint32(buf[16:20], 16)
	binary.LittleEndian.PutUint16(buf[20:22], 1) // PCM
	binary.LittleEndian.PutUint16(buf[22:24], 1) // mono
	binary.LittleEndian.PutUint32(buf[24:28], uint32(sampleRate))
	binary.LittleEndian.PutUint32(buf[28:32], uint32(sampleRate*2)) // byte rate
	binary.LittleEndian.PutUint16(buf[32:34], 2)                    // block align
	binary.LittleEndian.PutUint16(buf[34:36], 16)                   // bits per sample
	copy(buf[36:40], "data")
	binary.LittleEndian.PutUint32(buf[40:44], uint32(len(pcm)))

	return append(buf, pcm...)
}

// PCMDuration reports the playback length of raw s16 mono PCM.
func PCMDuration(pcmLen, sampleRate int) time.Duration {
	if sampleRate <= 0 {
		return 0
	}
	samples := pcmLen / 2
	return time.Duration(samples) * time.Second / time.Duration(sampleRate)
}
