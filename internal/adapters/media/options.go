package media

import (
	"github.com/jiyeyuran/mediasoup-go/v2"

	"github.com/classcast/classcast/internal/config"
)

// routerOptions builds the codec table offered by every room router:
// opus for audio, VP8 first plus H264 baseline for the screen track.
func routerOptions(cfg *config.Config) *mediasoup.RouterOptions {
	return &mediasoup.RouterOptions{
		MediaCodecs: []*mediasoup.RtpCodecCapability{
			{
				Kind:      mediasoup.MediaKindAudio,
				MimeType:  "audio/opus",
				ClockRate: 48000,
				Channels:  2,
				Parameters: mediasoup.RtpCodecSpecificParameters{
					SpropStereo:  1,
					Useinbandfec: 1,
				},
			},
			{
				Kind:      mediasoup.MediaKindVideo,
				MimeType:  "video/VP8",
				ClockRate: 90000,
				Parameters: mediasoup.RtpCodecSpecificParameters{
					XGoogleStartBitrate: 3000000,
				},
			},
			{
				Kind:      mediasoup.MediaKindVideo,
				MimeType:  "video/H264",
				ClockRate: 90000,
				Parameters: mediasoup.RtpCodecSpecificParameters{
					PacketizationMode:     1,
					ProfileLevelId:        "42e01f",
					LevelAsymmetryAllowed: 1,
				},
			},
		},
	}
}

func transportOptions(cfg *config.Config) *mediasoup.WebRtcTransportOptions {
	return &mediasoup.WebRtcTransportOptions{
		ListenInfos: []mediasoup.TransportListenInfo{
			{
				Protocol:         mediasoup.TransportProtocolUDP,
				Ip:               "0.0.0.0",
				AnnouncedAddress: cfg.AnnouncedAddress,
				PortRange:        mediasoup.TransportPortRange{Min: cfg.RtcMinPort, Max: cfg.RtcMaxPort},
			},
			{
				Protocol:         mediasoup.TransportProtocolTCP,
				Ip:               "0.0.0.0",
				AnnouncedAddress: cfg.AnnouncedAddress,
				PortRange:        mediasoup.TransportPortRange{Min: cfg.RtcMinPort, Max: cfg.RtcMaxPort},
			},
		},
		InitialAvailableOutgoingBitrate: uint32(cfg.InitialAvailableOutgoingBitrate),
	}
}
