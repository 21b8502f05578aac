// Package visualiser renders localization runs: PNG field plots with
// gonum/plot and interactive HTML trajectory pages with go-echarts.
package visualiser
